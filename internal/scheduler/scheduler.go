// Package scheduler runs harvests on a cron schedule and on demand, never
// more than one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-image-crawler/internal/harvest"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("harvest already running")

// Runner executes one harvest.
type Runner interface {
	Run(ctx context.Context) (harvest.Summary, error)
}

// Scheduler triggers Runner on a cron spec.
type Scheduler struct {
	runner Runner
	cron   *cron.Cron
	logger *zap.Logger

	running sync.Mutex
	wg      sync.WaitGroup

	mu      sync.RWMutex
	baseCtx context.Context
	last    *harvest.Summary
	lastErr error
}

// New parses spec (standard five fields) and builds a Scheduler.
func New(runner Runner, spec string, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{logger.Sugar()})))
	s := &Scheduler{runner: runner, cron: c, logger: logger, baseCtx: context.Background()}
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing the schedule. Runs use ctx as their parent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the schedule and waits for any run in flight.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow runs a harvest synchronously.
func (s *Scheduler) RunNow(ctx context.Context) (harvest.Summary, error) {
	if !s.running.TryLock() {
		return harvest.Summary{}, ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.run(ctx)
}

// Trigger starts a harvest in the background and returns immediately.
func (s *Scheduler) Trigger() error {
	if !s.running.TryLock() {
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		_, _ = s.run(s.parentContext())
	}()
	return nil
}

// Running reports whether a harvest is in progress.
func (s *Scheduler) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}

// LastSummary returns the summary of the most recent completed run.
func (s *Scheduler) LastSummary() (harvest.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return harvest.Summary{}, false
	}
	return *s.last, true
}

// LastError returns the error of the most recent completed run.
func (s *Scheduler) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Scheduler) tick() {
	if _, err := s.RunNow(s.parentContext()); errors.Is(err, ErrRunInProgress) {
		s.logger.Warn("previous harvest still running, skipping tick")
	}
}

func (s *Scheduler) run(ctx context.Context) (harvest.Summary, error) {
	summary, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("harvest failed", zap.String("run_id", summary.RunID), zap.Error(err))
	}
	s.mu.Lock()
	s.last = &summary
	s.lastErr = err
	s.mu.Unlock()
	return summary, err
}

func (s *Scheduler) parentContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseCtx
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
