// Package httpserver is the REST gateway of an ecaptureq instance: packet
// queries and lookups, an SSE feed of pushed rows, NDJSON export, capture
// session control and the diagnostics log.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
