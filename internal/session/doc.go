// Package session owns the capture run-state.
//
// Start moves the manager from not capturing to capturing: it launches the
// capture process, the ingestion loop and the push service under one
// cancellation token, giving the first two a short grace window to fail.
// Stop cancels the token and waits for every task. The push cursor outlives
// sessions so a restarted session continues where the previous one stopped.
package session
