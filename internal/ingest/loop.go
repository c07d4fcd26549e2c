package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/gojue/ecaptureQ/internal/metrics"
	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/store"
	"github.com/gojue/ecaptureQ/internal/wire"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
	"golang.org/x/time/rate"
)

const (
	DefaultFlushInterval    = 300 * time.Millisecond
	DefaultReconnectBackoff = 300 * time.Millisecond
)

// Appender is the slice of the store handle the loop needs.
type Appender interface {
	AppendBatch(ctx context.Context, recs []packet.Record) ([]uint64, error)
}

// Diagnostics receives heartbeats and process logs, which never enter the
// packets table.
type Diagnostics interface {
	RecordHeartbeat(hb packet.Heartbeat)
	RecordLog(l packet.ProcessLog)
}

type nopDiagnostics struct{}

func (nopDiagnostics) RecordHeartbeat(packet.Heartbeat) {}
func (nopDiagnostics) RecordLog(packet.ProcessLog)      {}

// Options configures a Loop.
type Options struct {
	Source      Source
	Store       Appender
	Diagnostics Diagnostics
	// Capturing reports the run-state. Reconnects happen only while it is true.
	Capturing        func() bool
	BatchSize        int
	FlushInterval    time.Duration
	ReconnectBackoff time.Duration
	Logger           logpkg.Logger
	Metrics          *metrics.Metrics
}

// Loop reads the event source, decodes frames and forwards event records to
// the store in batches bounded by count and time.
type Loop struct {
	opts   Options
	logger logpkg.Logger
	// decode failures are logged at most this often; all are counted
	decodeLog rate.Sometimes
}

// New returns a Loop for opts.Source. Zero batch and timing options take the
// package defaults.
func New(opts Options) *Loop {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = DefaultReconnectBackoff
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = nopDiagnostics{}
	}
	if opts.Capturing == nil {
		opts.Capturing = func() bool { return true }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	return &Loop{
		opts:      opts,
		logger:    logger.With(logpkg.Component("ingest"), logpkg.Str("source", opts.Source.String())),
		decodeLog: rate.Sometimes{First: 10, Interval: time.Second},
	}
}

var errConnLost = errors.New("connection lost")

// Run keeps a connection to the source until ctx is cancelled or the
// run-state leaves capturing (both return nil), or a fatal connection or
// store failure occurs. Records still buffered when ctx is cancelled are
// dropped.
func (l *Loop) Run(ctx context.Context) error {
	first := true
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !first {
			l.opts.Metrics.Reconnect()
		}
		first = false
		l.logger.Info("connecting to event source")
		conn, err := l.opts.Source.Dial(ctx)
		if err != nil {
			var ce *ConnectionError
			if errors.As(err, &ce) && ce.Fatal {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("connect failed", logpkg.Err(err))
			if !l.waitRetry(ctx) {
				return nil
			}
			continue
		}
		l.logger.Info("event source connected")
		err = l.session(ctx, conn)
		_ = conn.Close()
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, errConnLost):
			return err
		}
		if !l.waitRetry(ctx) {
			return nil
		}
	}
}

// waitRetry sleeps the backoff and reports whether another attempt should
// be made.
func (l *Loop) waitRetry(ctx context.Context) bool {
	if !l.opts.Capturing() {
		l.logger.Info("not capturing, giving up on event source")
		return false
	}
	t := time.NewTimer(l.opts.ReconnectBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return l.opts.Capturing()
	}
}

type frameResult struct {
	frame wire.Frame
	err   error
}

// session reads one connection. It returns nil on shutdown, errConnLost
// when the transport fails, or a store error that must end the loop.
func (l *Loop) session(ctx context.Context, conn Conn) error {
	frames := make(chan frameResult)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			f, err := conn.ReadFrame()
			select {
			case frames <- frameResult{frame: f, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	batch := NewBatcher(l.opts.BatchSize)
	ticker := time.NewTicker(l.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.dropped(batch)
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			l.dropped(batch)
			return nil
		case <-ticker.C:
			if batch.Len() > 0 {
				if err := l.flush(ctx, batch.Drain(), "timer"); err != nil {
					return err
				}
			}
		case fr := <-frames:
			if fr.err != nil {
				l.logger.Warn("event source read failed", logpkg.Err(fr.err))
				if batch.Len() > 0 {
					if err := l.flush(ctx, batch.Drain(), "disconnect"); err != nil {
						return err
					}
				}
				return errConnLost
			}
			rec, ok := l.decode(fr.frame)
			if !ok {
				continue
			}
			if full := batch.Add(rec); full != nil {
				if err := l.flush(ctx, full, "count"); err != nil {
					return err
				}
				ticker.Reset(l.opts.FlushInterval)
			}
		}
	}
}

// decode returns the event record of f, routing diagnostics elsewhere.
func (l *Loop) decode(f wire.Frame) (packet.Record, bool) {
	kind := f.Kind.String()
	l.opts.Metrics.Frame(kind)
	msg, err := wire.Decode(f)
	if err != nil {
		l.opts.Metrics.DecodeError(kind)
		l.decodeLog.Do(func() {
			l.logger.Warn("skipping undecodable frame", logpkg.Int("bytes", len(f.Data)), logpkg.Err(err))
		})
		return packet.Record{}, false
	}
	switch msg.Type {
	case wire.LogTypeEvent:
		return msg.Event, true
	case wire.LogTypeHeartbeat:
		l.opts.Metrics.Diagnostic("heartbeat")
		l.opts.Diagnostics.RecordHeartbeat(msg.Heartbeat)
	case wire.LogTypeProcessLog:
		l.opts.Metrics.Diagnostic("process_log")
		l.opts.Diagnostics.RecordLog(msg.Log)
	}
	return packet.Record{}, false
}

// flush hands a batch to the store. A closed store ends the loop; other
// append failures lose the batch but keep the stream.
func (l *Loop) flush(ctx context.Context, recs []packet.Record, reason string) error {
	_, err := l.opts.Store.AppendBatch(ctx, recs)
	switch {
	case err == nil:
		l.opts.Metrics.Flush(reason, len(recs))
		return nil
	case errors.Is(err, store.ErrClosed):
		return err
	case ctx.Err() != nil:
		return nil
	default:
		l.logger.Error("append batch failed", logpkg.Int("records", len(recs)), logpkg.Err(err))
		return nil
	}
}

func (l *Loop) dropped(b *Batcher) {
	if n := b.Len(); n > 0 {
		l.logger.Info("shutdown with unflushed records", logpkg.Int("dropped", n))
	}
}
