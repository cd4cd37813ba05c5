// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/clock/system"
	"github.com/JakeFAU/product-image-crawler/internal/config"
	"github.com/JakeFAU/product-image-crawler/internal/download"
	collyfetcher "github.com/JakeFAU/product-image-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/product-image-crawler/internal/harvest"
	"github.com/JakeFAU/product-image-crawler/internal/id/uuid"
	"github.com/JakeFAU/product-image-crawler/internal/metrics"
	"github.com/JakeFAU/product-image-crawler/internal/notify"
	"github.com/JakeFAU/product-image-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/product-image-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/product-image-crawler/internal/resolver"
	"github.com/JakeFAU/product-image-crawler/internal/storage/gcs"
	"github.com/JakeFAU/product-image-crawler/internal/storage/local"
	"github.com/JakeFAU/product-image-crawler/internal/storage/postgres"
	"github.com/JakeFAU/product-image-crawler/internal/strategy"
	"github.com/JakeFAU/product-image-crawler/internal/telemetry"
	"github.com/JakeFAU/product-image-crawler/internal/vcs"
)

// ServiceName tags logs, traces and pushed metrics.
const ServiceName = "imagecrawler"

// Version is overridden at build time with -ldflags.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// App holds the shared, long-lived services of the harvester.
// It is built once per process and closed on exit.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	harvester *harvest.Harvester
	closers   []namedCloser
}

type namedCloser struct {
	name string
	fn   func(context.Context) error
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Harvester returns the run orchestrator.
func (a *App) Harvester() *harvest.Harvester {
	return a.harvester
}

// New creates every service named by cfg. Optional collaborators (GCS mirror,
// Postgres catalog, Pub/Sub, pushgateway, git publish) are only built when
// configured. Any initialization failure closes what was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger.Info("initializing application services")

	shutdownTracing, err := telemetry.InitTracerProvider(ctx, ServiceName, Version, cfg.Tracing.SampleRatio)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.onClose("tracing", shutdownTracing)
	metrics.Init()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := system.New()
	reportClock := system.NewIn(loc)

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Crawl.RequestsPerSecond,
		Burst:             cfg.Crawl.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Crawl.UserAgent,
		Timeout:     cfg.HTTP.PageTimeout,
		MaxBodySize: cfg.Crawl.MaxBodyBytes,
	}, collyfetcher.WithLimiter(limiter))

	scopes := harvest.NewScopeFactory(fetcher, clock, resolver.Config{
		HeadTimeout:   cfg.HTTP.HeadTimeout,
		RecencyWindow: cfg.Crawl.RecencyWindow,
	}, strategyOptions(cfg), logger)

	history, err := local.NewHistoryStore(cfg.Paths.HistoryDir, cfg.Crawl.MaxHistoryURLs)
	if err != nil {
		return nil, fmt.Errorf("init history store: %w", err)
	}

	deps := harvest.Deps{
		Scopes:      scopes,
		History:     history,
		Checkpoints: local.NewCheckpointStore(cfg.Paths.CheckpointFile),
		Clock:       clock,
		IDs:         uuid.New(),
		Logger:      logger,
		Notifier: notify.NewTelegram(notify.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			APIBase:  cfg.Telegram.APIBase,
		}, nil, logger),
		Dispatcher: notify.NewDispatcher(notify.DispatchConfig{
			Token:   cfg.Dispatch.Token,
			Repo:    cfg.Dispatch.Repo,
			Event:   cfg.Dispatch.Event,
			APIBase: cfg.Dispatch.APIBase,
		}, nil, logger),
	}

	downloader, err := a.buildDownloader(ctx, reportClock, limiter)
	if err != nil {
		return nil, err
	}
	deps.Downloader = downloader

	if cfg.DB.DSN != "" {
		images, err := postgres.NewImageStore(ctx, postgres.ImageStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init image catalog: %w", err)
		}
		a.onClose("postgres", func(context.Context) error {
			images.Close()
			return nil
		})
		if err := images.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure image catalog schema: %w", err)
		}
		deps.Images = images
		logger.Info("image catalog enabled", zap.String("table", cfg.DB.Table))
	}

	if cfg.PubSub.Topic != "" {
		pub, err := pubsub.NewFromProject(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.onClose("pubsub", func(context.Context) error { return pub.Close() })
		deps.Publisher = pub
		logger.Info("run events enabled", zap.String("topic", cfg.PubSub.Topic))
	}

	if cfg.Publish.Enabled {
		deps.Committer = vcs.NewGitPublisher(vcs.Config{
			Enabled: true,
			RepoDir: cfg.Publish.RepoDir,
			Paths:   cfg.StatePaths(),
			Token:   cfg.Dispatch.Token,
		}, reportClock, logger)
	}

	if cfg.Metrics.PushgatewayURL != "" {
		deps.Pusher = metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job)
	}

	a.harvester, err = harvest.New(harvest.Config{
		DomainsFile:   cfg.Paths.DomainsFile,
		RunLogPath:    cfg.Paths.RunLog,
		StopURLsCount: cfg.Crawl.StopURLsCount,
		Location:      loc,
		RunTopic:      cfg.PubSub.Topic,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("init harvester: %w", err)
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) buildDownloader(ctx context.Context, clock *system.Clock, limiter *ratelimit.Limiter) (*download.Downloader, error) {
	cfg := a.cfg
	files, err := local.New(local.Config{BaseDir: cfg.Paths.DownloadDir})
	if err != nil {
		return nil, fmt.Errorf("init download dir: %w", err)
	}
	opts := []download.Option{download.WithLimiter(limiter)}

	if cfg.Storage.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.onClose("gcs", func(context.Context) error { return client.Close() })
		mirror, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs mirror: %w", err)
		}
		opts = append(opts, download.WithMirror(mirror))
		a.logger.Info("gcs image mirror enabled", zap.String("bucket", cfg.Storage.GCSBucket))
	}

	return download.New(files, clock, download.Config{
		UserAgent: cfg.Crawl.UserAgent,
		Timeout:   cfg.HTTP.DownloadTimeout,
	}, a.logger, opts...), nil
}

func strategyOptions(cfg config.Config) strategy.Options {
	return strategy.Options{
		MaxAPIPages:           cfg.Crawl.MaxAPIPages,
		MaxLinkSteps:          cfg.Crawl.MaxLinkSteps,
		APIURLPattern:         cfg.Crawl.APIURLPattern,
		ProductListURLPattern: cfg.Crawl.ProductListURLPattern,
		ProductSitemapMarker:  cfg.Crawl.ProductSitemapMarker,
		PageTimeout:           cfg.HTTP.PageTimeout,
		AttachmentTimeout:     cfg.HTTP.AttachmentTimeout,
		SitemapTimeout:        cfg.HTTP.SitemapTimeout,
	}
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

// Close shuts services down in reverse order of creation.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
