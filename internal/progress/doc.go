// Package progress carries crawl run milestones from the orchestrator to
// pluggable sinks. Events are batched on a background goroutine so the crawl
// loop never waits on logging, metrics, or the status endpoint.
package progress
