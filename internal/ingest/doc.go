// Package ingest connects to the capture tool's event stream and feeds
// decoded events to the store actor.
//
// A Loop keeps one connection open, reconnecting after a short fixed
// backoff while the session is capturing. Decoded events are buffered and
// flushed when the buffer holds BatchSize records, when the flush ticker
// fires with a non-empty buffer, or when the connection drops. A frame that
// fails to decode is counted, logged at a limited rate and skipped.
// Shutdown wins over pending work and drops whatever is still buffered.
package ingest
