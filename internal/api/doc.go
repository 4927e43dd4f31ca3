// Package api hosts the optional status server that runs beside a crawl.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the live run snapshot.
//   - GET /v1/checkpoint for the persisted checkpoint record.
package api
