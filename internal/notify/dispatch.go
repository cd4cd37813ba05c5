package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"
)

const (
	defaultDispatchEvent = "new_image_available"
	dispatchTimeout      = 15 * time.Second
)

// DispatchConfig identifies the repository_dispatch target. Repo is "owner/name".
type DispatchConfig struct {
	Token   string
	Repo    string
	Event   string
	APIBase string
}

// Dispatcher fires a GitHub repository_dispatch event.
type Dispatcher struct {
	cfg    DispatchConfig
	client *http.Client
	logger *zap.Logger
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(cfg DispatchConfig, client *http.Client, logger *zap.Logger) *Dispatcher {
	if cfg.Event == "" {
		cfg.Event = defaultDispatchEvent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, client: client, logger: logger.Named("dispatch")}
}

// Configured reports whether a token and repository are set.
func (d *Dispatcher) Configured() bool {
	return d.cfg.Token != "" && d.cfg.Repo != ""
}

// Dispatch posts the configured event.
func (d *Dispatcher) Dispatch(ctx context.Context) error {
	if !d.Configured() {
		return ErrNotConfigured
	}
	owner, repo, ok := strings.Cut(d.cfg.Repo, "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("dispatch repo %q: want owner/name", d.cfg.Repo)
	}
	gh, err := d.newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	opts := github.DispatchRequestOptions{EventType: d.cfg.Event}
	if _, _, err := gh.Repositories.Dispatch(ctx, owner, repo, opts); err != nil {
		return fmt.Errorf("dispatch %s to %s: %w", d.cfg.Event, d.cfg.Repo, err)
	}
	d.logger.Info("workflow dispatched", zap.String("repo", d.cfg.Repo), zap.String("event", d.cfg.Event))
	return nil
}

func (d *Dispatcher) newClient() (*github.Client, error) {
	gh := github.NewClient(d.client).WithAuthToken(d.cfg.Token)
	if d.cfg.APIBase == "" {
		return gh, nil
	}
	base, err := url.Parse(strings.TrimRight(d.cfg.APIBase, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse github api base: %w", err)
	}
	gh.BaseURL = base
	return gh, nil
}
