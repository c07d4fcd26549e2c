// Package capture supervises the external traffic capture process. The
// process is started with a whitespace-split argument string, interrupted on
// stop and killed if it outlives a short grace period.
package capture
