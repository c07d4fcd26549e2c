package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/sink"
)

// sseSink writes pushed batches as Server-Sent Events. Each batch becomes
// one data event carrying a sink.Message.
type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

func newSSESink(w http.ResponseWriter, r *http.Request) sseSink {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	s := sseSink{w: w, r: r}
	s.Flush()
	return s
}

// Emit implements push.Sink.
func (s sseSink) Emit(_ context.Context, topic string, rows []packet.Record) error {
	b, err := sink.Encode(topic, rows, time.Now())
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.Flush()
	return nil
}

// Ping writes a comment line so idle proxies keep the stream open.
func (s sseSink) Ping() error {
	if _, err := s.w.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	s.Flush()
	return nil
}

func (s sseSink) Context() context.Context {
	return s.r.Context()
}

func (s sseSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
