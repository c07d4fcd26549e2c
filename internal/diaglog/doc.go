// Package diaglog keeps the capture producer's heartbeats and process logs
// apart from the packets table.
//
// Entries are appended with monotonic sequence numbers into Pebble under
// diag/e/{seq_be8}, with the last sequence kept at diag/m. Values carry a
// CRC32C and corrupt records are skipped on read. Retention is bounded by
// entry count. Readers page with Read, block for new entries with
// WaitForAppend, or filter with a CEL expression through Search:
//
//	kind == "process_log" && level == "error"
package diaglog
