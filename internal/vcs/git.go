// Package vcs commits and pushes the crawl state files with go-git.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

const (
	commitStampLayout = "2006-01-02 15:04:05"
	remoteName        = "origin"
)

// Config selects what gets published.
type Config struct {
	Enabled bool
	RepoDir string
	// Paths are staged relative to RepoDir. Absolute paths must sit inside it.
	Paths []string
	// Token authenticates pushes to http(s) remotes.
	Token string
}

// GitPublisher amends the last commit with the state files and force-pushes it.
type GitPublisher struct {
	cfg    Config
	clock  crawler.Clock
	getenv func(string) string
	logger *zap.Logger
}

// NewGitPublisher builds a GitPublisher.
func NewGitPublisher(cfg Config, clock crawler.Clock, logger *zap.Logger) *GitPublisher {
	if cfg.RepoDir == "" {
		cfg.RepoDir = "."
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitPublisher{
		cfg:    cfg,
		clock:  clock,
		getenv: os.Getenv,
		logger: logger.Named("git"),
	}
}

// Skipped reports whether publishing is disabled or running under CI.
func (g *GitPublisher) Skipped() bool {
	return !g.cfg.Enabled || g.getenv("GITHUB_ACTIONS") == "true" || g.getenv("CI") == "true"
}

// Publish implements crawler.Committer.
func (g *GitPublisher) Publish(ctx context.Context) error {
	if g.Skipped() {
		g.logger.Info("git publish skipped")
		return nil
	}
	if len(g.cfg.Paths) == 0 {
		return fmt.Errorf("no paths to publish")
	}
	repo, err := git.PlainOpen(g.cfg.RepoDir)
	if err != nil {
		return fmt.Errorf("open repository %s: %w", g.cfg.RepoDir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := g.stage(wt); err != nil {
		return err
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("git status: %w", err)
	}
	if status.IsClean() {
		g.logger.Info("no changes to commit")
		return nil
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return fmt.Errorf("HEAD is detached at %s", head.Hash())
	}
	branch := head.Name().Short()
	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("load HEAD commit: %w", err)
	}

	message := "Auto-update crawled data at " + g.clock.Now().Format(commitStampLayout)
	author := headCommit.Author
	hash, err := wt.Commit(message, &git.CommitOptions{
		Amend:     true,
		Author:    &author,
		Committer: g.committer(repo, author),
	})
	if err != nil {
		return fmt.Errorf("amend commit: %w", err)
	}

	auth, err := g.pushAuth(repo)
	if err != nil {
		return err
	}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", head.Name(), head.Name()))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Force:      true,
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s to %s: %w", branch, remoteName, err)
	}
	g.logger.Info("state pushed",
		zap.String("branch", branch),
		zap.String("commit", hash.String()),
		zap.String("message", message),
	)
	return nil
}

func (g *GitPublisher) stage(wt *git.Worktree) error {
	for _, p := range g.cfg.Paths {
		rel, err := g.relative(p)
		if err != nil {
			return err
		}
		if _, err := wt.Filesystem.Lstat(rel); errors.Is(err, os.ErrNotExist) {
			g.logger.Debug("state path missing, not staged", zap.String("path", rel))
			continue
		}
		if err := wt.AddWithOptions(&git.AddOptions{Path: rel}); err != nil {
			return fmt.Errorf("git add %s: %w", rel, err)
		}
	}
	return nil
}

func (g *GitPublisher) relative(p string) (string, error) {
	if !filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	root, err := filepath.Abs(g.cfg.RepoDir)
	if err != nil {
		return "", fmt.Errorf("resolve repo dir: %w", err)
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside repository %s", p, root)
	}
	return rel, nil
}

// committer prefers the repository's configured identity and falls back to the
// commit author. The timestamp follows the report clock.
func (g *GitPublisher) committer(repo *git.Repository, author object.Signature) *object.Signature {
	sig := object.Signature{Name: author.Name, Email: author.Email, When: g.clock.Now()}
	cfg, err := repo.ConfigScoped(gitconfig.SystemScope)
	if err == nil && cfg.User.Name != "" && cfg.User.Email != "" {
		sig.Name, sig.Email = cfg.User.Name, cfg.User.Email
	}
	return &sig
}

func (g *GitPublisher) pushAuth(repo *git.Repository) (transport.AuthMethod, error) {
	if g.cfg.Token == "" {
		return nil, nil
	}
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return nil, fmt.Errorf("lookup remote %s: %w", remoteName, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 || !strings.HasPrefix(urls[0], "http") {
		return nil, nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: g.cfg.Token}, nil
}
