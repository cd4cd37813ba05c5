// Package metrics exposes Prometheus collectors for the image harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	headChecksTotal            *prometheus.CounterVec
	imagesFoundTotal           *prometheus.CounterVec
	imagesNewTotal             *prometheus.CounterVec
	imagesDiscardedTotal       *prometheus.CounterVec
	downloadsTotal             *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecrawler_fetches_total",
				Help: "Total number of outbound fetches, labeled by site, method and status code.",
			},
			[]string{"site", "method", "code"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecrawler_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imagecrawler_fetch_duration_seconds",
				Help:    "Histogram of outbound fetch latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method"},
		)

		headChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecrawler_head_checks_total",
				Help: "Liveness checks, labeled by outcome (live, dead, cached).",
			},
			[]string{"outcome"},
		)

		imagesFoundTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecrawler_images_found_total",
				Help: "Images emitted by strategies, labeled by domain and source type.",
			},
			[]string{"domain", "source_type"},
		)

		imagesNewTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecrawler_images_new_total",
				Help: "Images added to domain history, labeled by domain.",
			},
			[]string{"domain"},
		)

		imagesDiscardedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecrawler_images_discarded_total",
				Help: "Images dropped by the recency filter, labeled by domain.",
			},
			[]string{"domain"},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecrawler_downloads_total",
				Help: "Image download attempts, labeled by domain and result.",
			},
			[]string{"domain", "result"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecrawler_runs_total",
				Help: "Harvest runs, labeled by status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imagecrawler_run_duration_seconds",
				Help:    "Histogram of harvest run durations.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imagecrawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one outbound fetch. A zero code means a transport failure.
func ObserveFetch(rawURL, method string, code int, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, method, strconv.Itoa(code)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	fetchDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveHeadCheck counts a liveness check outcome.
func ObserveHeadCheck(outcome string) {
	Init()
	headChecksTotal.WithLabelValues(outcome).Inc()
}

// ObserveDomain records the per-domain outcome of a harvest.
func ObserveDomain(domain, sourceType string, found, discarded, added int) {
	Init()
	imagesFoundTotal.WithLabelValues(domain, sourceType).Add(float64(found))
	imagesDiscardedTotal.WithLabelValues(domain).Add(float64(discarded))
	imagesNewTotal.WithLabelValues(domain).Add(float64(added))
}

// ObserveDownload counts one download attempt for domain.
func ObserveDownload(domain, result string) {
	Init()
	downloadsTotal.WithLabelValues(domain, result).Inc()
}

// ObserveRun records a completed harvest run.
func ObserveRun(status string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
