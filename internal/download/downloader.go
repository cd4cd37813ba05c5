// Package download saves harvested images to the local download tree and
// optionally mirrors them to a remote blob store.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
	"github.com/JakeFAU/product-image-crawler/internal/metrics"
)

const (
	defaultTimeout = 60 * time.Second
	stampLayout    = "20060102-150405"
)

// LocalStore is the filesystem side of the downloader.
type LocalStore interface {
	crawler.BlobStore
	Contains(dir, name string) (bool, error)
	Open(path string) (io.ReadCloser, error)
	Rename(from, to string) error
	RemoveAll(path string) error
}

// Waiter gates each request, typically a per-host rate limiter.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls image requests.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Downloader implements crawler.Downloader.
type Downloader struct {
	cfg     Config
	client  *http.Client
	local   LocalStore
	mirror  crawler.BlobStore
	limiter Waiter
	clock   crawler.Clock
	logger  *zap.Logger
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithMirror uploads every saved image to store under <domain>/<name>.
func WithMirror(store crawler.BlobStore) Option {
	return func(d *Downloader) {
		d.mirror = store
	}
}

// WithLimiter waits on l before every image request.
func WithLimiter(l Waiter) Option {
	return func(d *Downloader) {
		d.limiter = l
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		d.client = c
	}
}

// New builds a Downloader writing into local.
func New(local LocalStore, clock crawler.Clock, cfg Config, logger *zap.Logger, opts ...Option) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Downloader{
		cfg:    cfg,
		client: &http.Client{},
		local:  local,
		clock:  clock,
		logger: logger.Named("download"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download saves the items of one domain into <domain>/<stamp>_tmp and renames
// the directory to <stamp>_<n>_images, or removes it when nothing was saved.
// Images whose file name already exists under <domain>/ are skipped.
func (d *Downloader) Download(ctx context.Context, domain string, items []crawler.Item, cfg crawler.DomainConfig) (int, error) {
	logger := d.logger.With(zap.String("domain", domain))
	namer, errs := NewNamer(cfg)
	for _, err := range errs {
		logger.Warn("invalid download filename pattern", zap.Error(err))
	}

	stamp := d.clock.Now().Format(stampLayout)
	tmpDir := path.Join(domain, stamp+"_tmp")
	saved := 0
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		name := namer.Name(item)
		if name == "" {
			logger.Debug("no usable file name", zap.String("url", item.ImageURL))
			continue
		}
		exists, err := d.local.Contains(domain, name)
		if err != nil {
			logger.Warn("check existing download failed", zap.String("file", name), zap.Error(err))
			continue
		}
		if exists {
			metrics.ObserveDownload(domain, "skipped")
			continue
		}
		target := path.Join(tmpDir, name)
		if err := d.save(ctx, item.ImageURL, target); err != nil {
			metrics.ObserveDownload(domain, "failed")
			logger.Warn("download failed", zap.String("url", item.ImageURL), zap.Error(err))
			continue
		}
		saved++
		metrics.ObserveDownload(domain, "saved")
		d.mirrorFile(ctx, logger, target, path.Join(domain, name))
	}

	if saved == 0 {
		if err := d.local.RemoveAll(tmpDir); err != nil {
			return 0, fmt.Errorf("remove empty download dir: %w", err)
		}
		return 0, nil
	}
	final := path.Join(domain, fmt.Sprintf("%s_%d_images", stamp, saved))
	if err := d.local.Rename(tmpDir, final); err != nil {
		return saved, fmt.Errorf("finalize download dir: %w", err)
	}
	logger.Info("images downloaded", zap.Int("count", saved), zap.String("dir", final))
	return saved, nil
}

func (d *Downloader) save(ctx context.Context, imageURL, target string) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, imageURL); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveFetch(imageURL, http.MethodGet, resp.StatusCode, 0, time.Since(start))
		return fmt.Errorf("%w: %d from %s", crawler.ErrHTTPStatus, resp.StatusCode, imageURL)
	}
	counter := &countingReader{r: resp.Body}
	_, err = d.local.PutObject(ctx, target, resp.Header.Get("Content-Type"), counter)
	metrics.ObserveFetch(imageURL, http.MethodGet, resp.StatusCode, counter.n, time.Since(start))
	return err
}

func (d *Downloader) mirrorFile(ctx context.Context, logger *zap.Logger, localPath, remotePath string) {
	if d.mirror == nil {
		return
	}
	rc, err := d.local.Open(localPath)
	if err != nil {
		logger.Warn("open image for mirror failed", zap.String("file", localPath), zap.Error(err))
		return
	}
	defer func() {
		_ = rc.Close()
	}()
	uri, err := d.mirror.PutObject(ctx, remotePath, "", rc)
	if err != nil {
		logger.Warn("mirror upload failed", zap.String("file", remotePath), zap.Error(err))
		return
	}
	logger.Debug("image mirrored", zap.String("uri", uri))
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
