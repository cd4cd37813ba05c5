// Package harvest runs one harvest over every configured domain: strategy
// dispatch, recency filtering, downloads, history persistence, checkpoint
// roll-forward and the end-of-run report.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
	"github.com/JakeFAU/product-image-crawler/internal/metrics"
	"github.com/JakeFAU/product-image-crawler/internal/notify"
	"github.com/JakeFAU/product-image-crawler/internal/resolver"
	"github.com/JakeFAU/product-image-crawler/internal/strategy"
)

const defaultStopURLsCount = 10

var tracer = otel.Tracer("github.com/JakeFAU/product-image-crawler/internal/harvest")

// Lookup resolves a source type to its strategy.
type Lookup interface {
	Lookup(sourceType string) (strategy.Strategy, error)
}

// RecencyChecker reports whether an image was modified inside the recency window.
type RecencyChecker interface {
	IsRecent(ctx context.Context, url string) bool
}

// Scope is the per-run strategy set and the resolver backing it.
type Scope struct {
	Strategies Lookup
	Recency    RecencyChecker
}

// ScopeFactory builds a fresh Scope for every run, so the metadata cache never
// outlives a run.
type ScopeFactory func() Scope

// NewScopeFactory wires a resolver with a new cache and a strategy registry per run.
func NewScopeFactory(
	fetcher crawler.Fetcher,
	clock crawler.Clock,
	resolverCfg resolver.Config,
	opts strategy.Options,
	logger *zap.Logger,
) ScopeFactory {
	return func() Scope {
		res := resolver.New(fetcher, resolver.NewCache(), clock, resolverCfg, logger)
		reg := strategy.NewRegistry(strategy.Deps{
			Fetcher:  fetcher,
			Resolver: res,
			Options:  opts,
			Logger:   logger,
		})
		return Scope{Strategies: reg, Recency: res}
	}
}

// Dispatcher triggers a downstream workflow.
type Dispatcher interface {
	Dispatch(ctx context.Context) error
}

// MetricsPusher pushes the run's metrics to a gateway.
type MetricsPusher interface {
	Push(ctx context.Context, runID string) error
}

// Config holds the run-level settings.
type Config struct {
	DomainsFile   string
	RunLogPath    string
	StopURLsCount int
	Location      *time.Location
	RunTopic      string
}

// Deps are the harvester's collaborators. Optional ones may be nil.
type Deps struct {
	Scopes      ScopeFactory
	History     crawler.HistoryStore
	Checkpoints crawler.CheckpointStore
	Clock       crawler.Clock
	IDs         crawler.IDGenerator
	Logger      *zap.Logger

	Downloader crawler.Downloader
	Images     crawler.ImageRecorder
	Notifier   crawler.Notifier
	Dispatcher Dispatcher
	Publisher  crawler.Publisher
	Committer  crawler.Committer
	Pusher     MetricsPusher

	// LoadConfigs defaults to crawler.LoadDomainConfigs.
	LoadConfigs func(path string) ([]crawler.DomainConfig, error)
}

// Harvester orchestrates a run.
type Harvester struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates deps and builds a Harvester.
func New(cfg Config, deps Deps) (*Harvester, error) {
	switch {
	case deps.Scopes == nil:
		return nil, fmt.Errorf("scope factory is required")
	case deps.History == nil:
		return nil, fmt.Errorf("history store is required")
	case deps.Checkpoints == nil:
		return nil, fmt.Errorf("checkpoint store is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.StopURLsCount <= 0 {
		cfg.StopURLsCount = defaultStopURLsCount
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if deps.LoadConfigs == nil {
		deps.LoadConfigs = crawler.LoadDomainConfigs
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{cfg: cfg, deps: deps, log: logger.Named("harvest")}, nil
}

// Run harvests every configured domain in order. Per-domain failures are
// recorded in the summary; the returned error is set only when the
// checkpoint could not be saved or the run was canceled.
func (h *Harvester) Run(ctx context.Context) (Summary, error) {
	start := h.deps.Clock.Now()
	runID, err := h.deps.IDs.NewID()
	if err != nil {
		runID = start.UTC().Format("20060102T150405Z")
		h.log.Warn("run id generation failed, using timestamp", zap.Error(err))
	}
	logger := h.log.With(zap.String("run_id", runID))
	logger.Info("harvest started")

	ctx, span := tracer.Start(ctx, "harvest.run")
	span.SetAttributes(attribute.String("run.id", runID))
	defer span.End()

	configs, err := h.deps.LoadConfigs(h.cfg.DomainsFile)
	if err != nil {
		logger.Error("domain configs unavailable, nothing to harvest", zap.Error(err))
		configs = nil
	}
	checkpoint, err := h.deps.Checkpoints.Load()
	if err != nil {
		logger.Error("checkpoint unreadable, starting empty", zap.Error(err))
	}
	if checkpoint == nil {
		checkpoint = crawler.Checkpoint{}
	}

	scope := h.deps.Scopes()
	summary := Summary{RunID: runID, StartedAt: start}
	for _, cfg := range configs {
		if ctx.Err() != nil {
			break
		}
		summary.Domains = append(summary.Domains, h.harvestDomain(ctx, scope, cfg, checkpoint, runID, logger))
	}

	var runErr error
	if err := h.deps.Checkpoints.Save(checkpoint); err != nil {
		logger.Error("checkpoint save failed", zap.Error(err))
		runErr = fmt.Errorf("save checkpoint: %w", err)
	}
	if ctx.Err() != nil {
		runErr = errors.Join(runErr, ctx.Err())
	}

	summary.FinishedAt = h.deps.Clock.Now()
	summary.Duration = summary.FinishedAt.Sub(start)
	summary.DurationSeconds = summary.Duration.Seconds()

	status := "success"
	if runErr != nil {
		status = "error"
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "harvest failed")
	}
	span.SetAttributes(attribute.Int("run.new_images", summary.NewImages()))
	metrics.ObserveRun(status, summary.Duration)

	h.report(context.WithoutCancel(ctx), summary, logger)
	logger.Info("harvest finished",
		zap.Int("domains", len(summary.Domains)),
		zap.Int("new_images", summary.NewImages()),
		zap.Duration("duration", summary.Duration),
	)
	return summary, runErr
}

func (h *Harvester) harvestDomain(
	ctx context.Context,
	scope Scope,
	cfg crawler.DomainConfig,
	checkpoint crawler.Checkpoint,
	runID string,
	logger *zap.Logger,
) DomainSummary {
	domain := cfg.Domain()
	ds := DomainSummary{Domain: domain, SourceType: cfg.SourceType}
	logger = logger.With(zap.String("domain", domain), zap.String("source_type", cfg.SourceType))

	ctx, span := tracer.Start(ctx, "harvest.domain", trace.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("source_type", cfg.SourceType),
	))
	defer span.End()

	strat, err := scope.Strategies.Lookup(cfg.SourceType)
	if err != nil {
		logger.Warn("no strategy for source type, skipping domain", zap.Error(err))
		ds.Skipped = true
		return ds
	}

	result := strat.Crawl(ctx, cfg, crawler.NewStopSet(checkpoint[domain]))
	items := result.Items
	ds.Found = len(items)

	if cfg.CheckRecency {
		kept := make([]crawler.Item, 0, len(items))
		for _, item := range items {
			if scope.Recency.IsRecent(ctx, item.ImageURL) {
				kept = append(kept, item)
			} else {
				ds.Discarded++
			}
		}
		items = kept
		logger.Debug("recency filter applied", zap.Int("kept", len(kept)), zap.Int("discarded", ds.Discarded))
	}

	if cfg.DownloadImages && h.deps.Downloader != nil {
		n, err := h.deps.Downloader.Download(ctx, domain, items, cfg)
		ds.Downloaded = n
		if err != nil {
			logger.Warn("image download incomplete", zap.Error(err))
		}
	}

	urls := make([]string, 0, len(items))
	for _, item := range items {
		urls = append(urls, item.ImageURL)
	}
	newCount, total, err := h.deps.History.MergeAndSave(domain, urls)
	if err != nil {
		logger.Error("history save failed, checkpoint left unchanged", zap.Error(err))
		ds.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "history save failed")
		return ds
	}
	ds.NewCount, ds.TotalCount = newCount, total

	if h.deps.Images != nil && len(items) > 0 {
		if err := h.deps.Images.RecordImages(ctx, runID, domain, items); err != nil {
			logger.Warn("image catalog update failed", zap.Error(err))
		}
	}

	checkpoint.Roll(domain, result.ProductURLs, h.cfg.StopURLsCount)
	metrics.ObserveDomain(domain, cfg.SourceType, ds.Found, ds.Discarded, ds.NewCount)
	logger.Info("domain harvested",
		zap.Int("found", ds.Found),
		zap.Int("discarded", ds.Discarded),
		zap.Int("new", ds.NewCount),
		zap.Int("total", ds.TotalCount),
	)
	return ds
}

// report writes the run log and fans the summary out to the collaborators.
// Every failure here is logged and swallowed.
func (h *Harvester) report(ctx context.Context, summary Summary, logger *zap.Logger) {
	if h.cfg.RunLogPath != "" {
		// #nosec G306 -- the run log is published alongside the repository.
		if err := os.WriteFile(h.cfg.RunLogPath, []byte(RunLog(summary, h.cfg.Location)), 0o644); err != nil {
			logger.Error("run log write failed", zap.Error(err))
		}
	}

	if summary.HasNewImages() {
		if h.deps.Notifier != nil {
			err := h.deps.Notifier.Notify(ctx, Notification(summary, h.cfg.Location))
			if err != nil && !errors.Is(err, notify.ErrNotConfigured) {
				logger.Warn("notification failed", zap.Error(err))
			}
		}
		if h.deps.Dispatcher != nil {
			err := h.deps.Dispatcher.Dispatch(ctx)
			if err != nil && !errors.Is(err, notify.ErrNotConfigured) {
				logger.Warn("workflow dispatch failed", zap.Error(err))
			}
		}
	} else {
		logger.Info("no new images, skipping notification")
	}

	if h.deps.Publisher != nil && h.cfg.RunTopic != "" {
		if id, err := h.deps.Publisher.Publish(ctx, h.cfg.RunTopic, summary); err != nil {
			logger.Warn("run summary publish failed", zap.Error(err))
		} else {
			logger.Debug("run summary published", zap.String("message_id", id))
		}
	}

	if h.deps.Committer != nil {
		if err := h.deps.Committer.Publish(ctx); err != nil {
			logger.Warn("git publish failed", zap.Error(err))
		}
	}

	if h.deps.Pusher != nil {
		if err := h.deps.Pusher.Push(ctx, summary.RunID); err != nil {
			logger.Warn("metrics push failed", zap.Error(err))
		}
	}
}
