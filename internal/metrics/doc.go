// Package metrics defines the Prometheus collectors for ingestion, the store
// actor, the push service, output sinks and the diagnostics store, served at
// /metrics.
package metrics
