package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gojue/ecaptureQ/internal/metrics"
	"github.com/gojue/ecaptureQ/internal/packet"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
)

// Sink is the output side of the push service.
type Sink interface {
	Emit(ctx context.Context, topic string, rows []packet.Record) error
}

// Message is the JSON document published to brokers.
type Message struct {
	Topic  string          `json:"topic"`
	SentAt int64           `json:"sent_at"`
	Rows   []packet.Record `json:"rows"`
}

// Encode renders a batch as the JSON Message every external sink sends.
func Encode(topic string, rows []packet.Record, now time.Time) ([]byte, error) {
	b, err := json.Marshal(Message{Topic: topic, SentAt: now.UnixMilli(), Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("sink: encode: %w", err)
	}
	return b, nil
}

// Named attaches a label used in logs and metrics.
type Named struct {
	Name string
	Sink Sink
}

// Multi forwards every batch to each sink in turn. Failures are logged and
// counted; the others still receive the batch. Emit reports the joined
// failures.
type Multi struct {
	sinks   []Named
	logger  logpkg.Logger
	metrics *metrics.Metrics
}

// NewMulti fans out to sinks in order. m may be nil.
func NewMulti(logger logpkg.Logger, m *metrics.Metrics, sinks ...Named) *Multi {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	return &Multi{sinks: sinks, logger: logger.WithComponent("sink"), metrics: m}
}

func (m *Multi) Add(name string, s Sink) { m.sinks = append(m.sinks, Named{Name: name, Sink: s}) }

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Emit(ctx context.Context, topic string, rows []packet.Record) error {
	var errs []error
	for _, n := range m.sinks {
		if err := n.Sink.Emit(ctx, topic, rows); err != nil {
			m.metrics.SinkError(n.Name)
			m.logger.Warn("emit failed", logpkg.Str("sink", n.Name), logpkg.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes a one-line summary of each batch at debug level.
type LogSink struct {
	Logger logpkg.Logger
}

func (s LogSink) Emit(_ context.Context, topic string, rows []packet.Record) error {
	if s.Logger == nil || len(rows) == 0 {
		return nil
	}
	s.Logger.Debug("rows pushed",
		logpkg.Str("topic", topic),
		logpkg.Int("rows", len(rows)),
		logpkg.Uint64("first", rows[0].Index),
		logpkg.Uint64("last", rows[len(rows)-1].Index))
	return nil
}
