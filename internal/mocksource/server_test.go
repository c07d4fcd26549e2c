package mocksource

import (
	"context"
	"math/rand/v2"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gojue/ecaptureQ/internal/wire"
	"github.com/gorilla/websocket"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestScriptedFramesArriveInOrder(t *testing.T) {
	script := []wire.Frame{
		{Kind: wire.FrameBinary, Data: wire.AppendProtoHeartbeat(nil, 1, 2, "hi")},
		{Kind: wire.FrameText, Data: []byte(`{"log_type":1,"payload":{"log":"x"}}`)},
	}
	s := New(Options{Script: script})
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	c := dial(t, srv.URL)
	for i, want := range script {
		mt, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		wantType := websocket.BinaryMessage
		if want.Kind == wire.FrameText {
			wantType = websocket.TextMessage
		}
		if mt != wantType || string(data) != string(want.Data) {
			t.Fatalf("frame %d: got type %d %q", i, mt, data)
		}
	}
	if s.Connections() != 1 {
		t.Fatalf("connections=%d", s.Connections())
	}
}

func TestRandomTrafficDecodes(t *testing.T) {
	for _, format := range []Format{FormatProto, FormatJSON} {
		s := New(Options{Format: format, BurstMin: 3, BurstMax: 3, GapMin: time.Millisecond, GapMax: 2 * time.Millisecond, Seed: 7})
		srv := httptest.NewServer(s)
		c := dial(t, srv.URL)
		for i := 0; i < 3; i++ {
			mt, data, err := c.ReadMessage()
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			kind := wire.FrameBinary
			if mt == websocket.TextMessage {
				kind = wire.FrameText
			}
			msg, err := wire.Decode(wire.Frame{Kind: kind, Data: data})
			if err != nil {
				t.Fatalf("decode (format %d): %v", format, err)
			}
			if msg.Type != wire.LogTypeEvent || msg.Event.ProcessName == "" {
				t.Fatalf("unexpected message %+v", msg)
			}
		}
		_ = c.Close()
		s.Close()
		srv.Close()
	}
}

func TestGenerateClassifiesPayload(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		rec := Generate(rng, time.Unix(0, 0))
		if rec.IsBinary && rec.PayloadText != "" {
			t.Fatalf("binary record carries text")
		}
		if !rec.IsBinary && rec.PayloadBytes != nil {
			t.Fatalf("text record carries bytes")
		}
		if int(rec.Length) != len(rec.Payload()) {
			t.Fatalf("length %d payload %d", rec.Length, len(rec.Payload()))
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, Options{}) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Fatalf("json: %v %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error")
	}
}
