// Package mocksource serves synthetic capture traffic over WebSocket.
//
// Each connection receives bursts of events separated by idle lulls, in the
// protobuf or JSON framing the real capture tool uses. A fixed Script can
// replace the random traffic for tests.
package mocksource
