package ingest

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gojue/ecaptureQ/internal/mocksource"
	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/wire"
	"github.com/gorilla/websocket"
)

func TestWebSocketSourceFrames(t *testing.T) {
	ev := wire.AppendProtoEvent(nil, packet.Record{Timestamp: 5, ProcessName: "curl", PayloadText: "GET /", Length: 5})
	script := []wire.Frame{
		{Kind: wire.FrameBinary, Data: ev},
		{Kind: wire.FrameText, Data: []byte(`{"log_type":0,"payload":{"timestamp":1,"count":2,"message":"ok"}}`)},
	}
	mock := mocksource.New(mocksource.Options{Script: script})
	srv := httptest.NewServer(mock)
	defer srv.Close()
	defer mock.Close()

	src, err := NewSource("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := src.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i, want := range script {
		f, err := conn.ReadFrame()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if f.Kind != want.Kind || string(f.Data) != string(want.Data) {
			t.Fatalf("frame %d mismatch: kind %v", i, f.Kind)
		}
	}
}

func TestWebSocketSourceSendsOrigin(t *testing.T) {
	origin := make(chan string, 1)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin <- r.Header.Get("Origin")
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = c.Close()
	}))
	defer srv.Close()

	src := &WebSocketSource{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	conn, err := src.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if got := <-origin; got != "http://localhost/" {
		t.Fatalf("origin=%q", got)
	}
	if _, err := conn.ReadFrame(); err == nil {
		t.Fatalf("expected error after server closed")
	}
}

func TestWebSocketDialFailureIsRetryable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = (&WebSocketSource{URL: "ws://" + addr + "/"}).Dial(context.Background())
	ce, ok := err.(*ConnectionError)
	if !ok {
		t.Fatalf("want ConnectionError, got %T %v", err, err)
	}
	if ce.Fatal {
		t.Fatalf("dial failure must be retryable")
	}
}

func TestTCPSourceFrames(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	payloads := [][]byte{
		wire.AppendProtoHeartbeat(nil, 10, 3, "alive"),
		wire.AppendProtoRunLog(nil, `{"level":"info","message":"started"}`),
	}
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		for _, p := range payloads {
			if err := WriteTCPFrame(c, p); err != nil {
				return
			}
		}
	}()

	src, err := NewSource("tcp://" + ln.Addr().String())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	conn, err := src.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i, want := range payloads {
		f, err := conn.ReadFrame()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if f.Kind != wire.FrameBinary || string(f.Data) != string(want) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
	msg, err := wire.Decode(wire.Frame{Kind: wire.FrameBinary, Data: payloads[0]})
	if err != nil || msg.Heartbeat.Count != 3 {
		t.Fatalf("decode heartbeat: %+v %v", msg, err)
	}
	if _, err := conn.ReadFrame(); err == nil {
		t.Fatalf("expected EOF error")
	}
}
