package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var stamp = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

// newRepo creates a working repository with one commit and an origin remote
// pointing at an empty bare repository.
func newRepo(t *testing.T) (string, *git.Repository, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	writeFile(t, dir, "domain/shop.example.txt", "https://cdn.example/a.jpg\n")
	writeFile(t, dir, "stop_urls.txt", "https://cdn.example/a.jpg\n")
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
	_, err = wt.Commit("seed", &git.CommitOptions{
		Author: &object.Signature{Name: "Crawler", Email: "crawler@example.com", When: stamp.Add(-time.Hour)},
	})
	require.NoError(t, err)

	remoteDir := t.TempDir()
	remote, err := git.PlainInit(remoteDir, true)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remoteDir}})
	require.NoError(t, err)
	return dir, repo, remote
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newPublisher(dir string, env map[string]string, enabled bool) *GitPublisher {
	g := NewGitPublisher(Config{
		Enabled: enabled,
		RepoDir: dir,
		Paths:   []string{"domain", "stop_urls.txt", "imagecrawler.log"},
	}, fixedClock{stamp}, zap.NewNop())
	g.getenv = func(k string) string { return env[k] }
	return g
}

func TestPublishAmendsAndForcePushes(t *testing.T) {
	t.Parallel()

	dir, repo, remote := newRepo(t)
	seedHead, err := repo.Head()
	require.NoError(t, err)

	writeFile(t, dir, "domain/shop.example.txt", "https://cdn.example/a.jpg\nhttps://cdn.example/b.jpg\n")
	writeFile(t, dir, "imagecrawler.log", "run\n")
	require.NoError(t, newPublisher(dir, nil, true).Publish(context.Background()))

	head, err := repo.Head()
	require.NoError(t, err)
	assert.NotEqual(t, seedHead.Hash(), head.Hash())

	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Auto-update crawled data at 2026-03-04 05:06:07", commit.Message)
	assert.Equal(t, 0, commit.NumParents(), "amend replaces the seed commit")
	assert.Equal(t, "Crawler", commit.Author.Name)
	assert.True(t, stamp.Equal(commit.Committer.When))

	file, err := commit.File("domain/shop.example.txt")
	require.NoError(t, err)
	contents, err := file.Contents()
	require.NoError(t, err)
	assert.Contains(t, contents, "b.jpg")
	_, err = commit.File("imagecrawler.log")
	assert.NoError(t, err)

	pushed, err := remote.Reference(head.Name(), true)
	require.NoError(t, err)
	assert.Equal(t, head.Hash(), pushed.Hash())
}

func TestPublishNoChanges(t *testing.T) {
	t.Parallel()

	dir, repo, remote := newRepo(t)
	seedHead, err := repo.Head()
	require.NoError(t, err)

	require.NoError(t, newPublisher(dir, nil, true).Publish(context.Background()))

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, seedHead.Hash(), head.Hash())
	_, err = remote.Reference(head.Name(), true)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestPublishSkipped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		enabled bool
	}{
		{name: "github actions", env: map[string]string{"GITHUB_ACTIONS": "true"}, enabled: true},
		{name: "ci", env: map[string]string{"CI": "true"}, enabled: true},
		{name: "disabled", enabled: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// Not a repository: any git access would fail.
			g := newPublisher(t.TempDir(), tt.env, tt.enabled)
			assert.True(t, g.Skipped())
			require.NoError(t, g.Publish(context.Background()))
		})
	}
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	t.Run("not a repository", func(t *testing.T) {
		t.Parallel()
		err := newPublisher(t.TempDir(), nil, true).Publish(context.Background())
		assert.ErrorIs(t, err, git.ErrRepositoryNotExists)
	})

	t.Run("missing remote", func(t *testing.T) {
		t.Parallel()
		dir, repo, _ := newRepo(t)
		require.NoError(t, repo.DeleteRemote("origin"))
		writeFile(t, dir, "stop_urls.txt", "changed\n")

		err := newPublisher(dir, nil, true).Publish(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "push")
	})

	t.Run("path outside repository", func(t *testing.T) {
		t.Parallel()
		dir, _, _ := newRepo(t)
		g := NewGitPublisher(Config{Enabled: true, RepoDir: dir, Paths: []string{"/etc/passwd"}}, fixedClock{stamp}, nil)
		g.getenv = func(string) string { return "" }
		assert.ErrorContains(t, g.Publish(context.Background()), "outside repository")
	})
}

func TestRelativeAbsolutePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g := NewGitPublisher(Config{RepoDir: dir}, fixedClock{stamp}, nil)
	rel, err := g.relative(filepath.Join(dir, "domain"))
	require.NoError(t, err)
	assert.Equal(t, "domain", rel)

	rel, err = g.relative("./stop_urls.txt")
	require.NoError(t, err)
	assert.Equal(t, "stop_urls.txt", rel)
}
