package packet

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PreviewLimit caps how many bytes of a binary payload are rendered.
const PreviewLimit = 1024

// Preview renders a payload for display: UTF-8 payloads are returned as-is,
// anything else becomes a hex dump of at most PreviewLimit bytes, 16 bytes
// per row with an extra gap after the eighth.
func Preview(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	var b strings.Builder
	if len(payload) > PreviewLimit {
		fmt.Fprintf(&b, "(Preview of first %d bytes)\n", PreviewLimit)
	}
	fmt.Fprintf(&b, "Binary data (%d bytes):", len(payload))
	n := len(payload)
	if n > PreviewLimit {
		n = PreviewLimit
	}
	for i := 0; i < n; i++ {
		switch {
		case i%16 == 0:
			fmt.Fprintf(&b, "\n%04x: %02x", i, payload[i])
		case i%8 == 0:
			fmt.Fprintf(&b, "  %02x", payload[i])
		default:
			fmt.Fprintf(&b, " %02x", payload[i])
		}
	}
	return b.String()
}
