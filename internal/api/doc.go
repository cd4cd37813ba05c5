// Package api hosts the serve-mode HTTP server. Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/last for the latest harvest summary.
//   - POST /v1/runs to start a harvest now.
package api
