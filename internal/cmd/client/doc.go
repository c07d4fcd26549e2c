// Package client provides the `ecaptureq` command-line client.
//
// The commands talk to a running instance over gRPC (default) or the HTTP
// gateway, selected with --transport or ECAPTUREQ_TRANSPORT. The gRPC
// address comes from ECAPTUREQ_GRPC (default 127.0.0.1:50051); the HTTP
// base URL from the BaseURLFunc supplied by the embedding binary.
//
// Usage
//
//	ecaptureq query "pname = 'curl' AND dst_port = 443"
//	ecaptureq query --cursor 120 "SELECT * FROM packets WHERE length > 512"
//	ecaptureq get 42
//	ecaptureq get 42 --raw > payload.bin
//
//	# follow the session feed, or a private filtered feed from the start
//	ecaptureq tail
//	ecaptureq tail --filter "pid = 1234" --limit 10
//
//	ecaptureq capture start
//	ecaptureq capture filter "type = 1"
//	ecaptureq capture status
//	ecaptureq capture stop
//
//	ecaptureq export --compress --out dump.ndjson.zst "is_binary = false"
//	ecaptureq diag -f --filter 'kind == "process_log" && level == "error"'
//
//	# synthetic event source for trying the pipeline without a capture process
//	ecaptureq mock-source --addr 127.0.0.1:28257 --format json
//
// Notes
//
//   - export and diagnostics always use the HTTP gateway.
//   - tail without --filter shows batches as the running session pushes
//     them; with --filter the server runs a separate push loop whose cursor
//     starts before the first row unless --cursor is given.
package client
