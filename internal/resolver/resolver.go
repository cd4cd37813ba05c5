// Package resolver validates and rewrites harvested image URLs.
//
// Liveness and recency come from memoized HEAD requests. Rewrites are the
// filename-prefix fallback and the substitution rules configured per domain,
// applied in that order by Finalize.
package resolver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
	"github.com/JakeFAU/product-image-crawler/internal/metrics"
)

const (
	defaultHeadTimeout   = 10 * time.Second
	defaultRecencyWindow = 24 * time.Hour
)

// Config tunes the resolver.
type Config struct {
	HeadTimeout   time.Duration
	RecencyWindow time.Duration
}

// Resolver checks and rewrites image URLs.
type Resolver struct {
	fetcher crawler.Fetcher
	cache   *Cache
	clock   crawler.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Resolver. A nil cache gets a fresh one.
func New(fetcher crawler.Fetcher, cache *Cache, clock crawler.Clock, cfg Config, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = defaultHeadTimeout
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = defaultRecencyWindow
	}
	return &Resolver{
		fetcher: fetcher,
		cache:   cache,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("resolver"),
	}
}

// Metadata returns the memoized HEAD outcome for rawURL. It never fails:
// transport errors yield status 0 and any non-200 status is not recent.
func (r *Resolver) Metadata(ctx context.Context, rawURL string) crawler.URLMetadata {
	if rawURL == "" || !strings.HasPrefix(rawURL, "http") {
		return crawler.URLMetadata{}
	}
	if md, ok := r.cache.Get(rawURL); ok {
		metrics.ObserveHeadCheck("cached")
		return md
	}

	md := r.head(ctx, rawURL)
	r.cache.Put(rawURL, md)
	if md.Status == http.StatusOK {
		metrics.ObserveHeadCheck("live")
	} else {
		metrics.ObserveHeadCheck("dead")
	}
	return md
}

func (r *Resolver) head(ctx context.Context, rawURL string) crawler.URLMetadata {
	req := crawler.FetchRequest{URL: rawURL, Method: http.MethodHead, Timeout: r.cfg.HeadTimeout}
	resp, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		status := 0
		if errors.Is(err, crawler.ErrHTTPStatus) {
			status = resp.StatusCode
		}
		r.logger.Debug("head check failed", zap.String("url", rawURL), zap.Int("status", status), zap.Error(err))
		return crawler.URLMetadata{Status: status}
	}
	if resp.StatusCode != http.StatusOK {
		return crawler.URLMetadata{Status: resp.StatusCode}
	}

	md := crawler.URLMetadata{Status: resp.StatusCode, IsRecent: true}
	lastModified := resp.Headers.Get("Last-Modified")
	if lastModified == "" {
		return md
	}
	modified, err := http.ParseTime(lastModified)
	if err != nil {
		r.logger.Debug("unparsable Last-Modified", zap.String("url", rawURL), zap.String("value", lastModified))
		md.IsRecent = false
		return md
	}
	md.IsRecent = r.clock.Now().Sub(modified) <= r.cfg.RecencyWindow
	return md
}

// IsLive reports whether rawURL answers HEAD with 200.
func (r *Resolver) IsLive(ctx context.Context, rawURL string) bool {
	return r.Metadata(ctx, rawURL).Status == http.StatusOK
}

// IsRecent reports whether rawURL is live and modified within the recency window.
func (r *Resolver) IsRecent(ctx context.Context, rawURL string) bool {
	md := r.Metadata(ctx, rawURL)
	return md.Status == http.StatusOK && md.IsRecent
}
