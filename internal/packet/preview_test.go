package packet

import (
	"strings"
	"testing"
)

func TestPreviewText(t *testing.T) {
	if got := Preview([]byte("GET / HTTP/1.1\r\n")); got != "GET / HTTP/1.1\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestPreviewHexLayout(t *testing.T) {
	payload := make([]byte, 18)
	for i := range payload {
		payload[i] = byte(0xf0 + i%16)
	}
	got := Preview(payload)
	want := "Binary data (18 bytes):" +
		"\n0000: f0 f1 f2 f3 f4 f5 f6 f7  f8 f9 fa fb fc fd fe ff" +
		"\n0010: f0 f1"
	if got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}
}

func TestPreviewTruncates(t *testing.T) {
	payload := make([]byte, 2000)
	payload[0] = 0xff
	got := Preview(payload)
	if !strings.HasPrefix(got, "(Preview of first 1024 bytes)\nBinary data (2000 bytes):") {
		t.Fatalf("missing header: %q", got[:80])
	}
	if rows := strings.Count(got, "\n") - 1; rows != 64 {
		t.Fatalf("expected 64 rows, got %d", rows)
	}
}

func TestSummaryDropsPayload(t *testing.T) {
	r := Record{Index: 3, PayloadText: "hi"}
	s := r.Summary()
	if s.PayloadText != "" || s.Index != 3 || r.PayloadText != "hi" {
		t.Fatalf("unexpected summary %+v", s)
	}
	if string(r.Payload()) != "hi" {
		t.Fatalf("payload accessor")
	}
}
