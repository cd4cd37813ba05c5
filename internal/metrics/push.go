package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Pusher sends the collected metrics to a Prometheus Pushgateway at the end of a batch run.
type Pusher struct {
	url      string
	job      string
	gatherer prometheus.Gatherer
}

// NewPusher builds a Pusher for the default registry.
func NewPusher(url, job string) *Pusher {
	Init()
	return &Pusher{url: url, job: job, gatherer: prometheus.DefaultGatherer}
}

// Push replaces the metrics grouped under runID on the gateway.
func (p *Pusher) Push(ctx context.Context, runID string) error {
	pusher := push.New(p.url, p.job).Gatherer(p.gatherer)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
