// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, and an in-memory status snapshot served over HTTP.
package sinks
