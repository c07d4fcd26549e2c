package push

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gojue/ecaptureQ/internal/metrics"
	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/store"
	"github.com/gojue/ecaptureQ/internal/table"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
)

const (
	DefaultInterval = 300 * time.Millisecond
	DefaultTopic    = "packet-data"
)

// Querier is the slice of the store handle the service needs.
type Querier interface {
	Incremental(ctx context.Context, cursor uint64, filter string) (*table.Frame, error)
}

// Sink receives every non-empty batch of new rows.
type Sink interface {
	Emit(ctx context.Context, topic string, rows []packet.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, topic string, rows []packet.Record) error

func (f SinkFunc) Emit(ctx context.Context, topic string, rows []packet.Record) error {
	return f(ctx, topic, rows)
}

// Options configures a Service.
type Options struct {
	Store    Querier
	Sink     Sink
	Topic    string
	Interval time.Duration
	// Filter is the initial predicate or full query. Empty selects every row.
	Filter string
	// Cursor lets the owner keep delivery state across services. A fresh
	// cursor is used when nil.
	Cursor  *Cursor
	Logger  logpkg.Logger
	Metrics *metrics.Metrics
}

// Service polls the store for rows past its cursor and forwards them to the
// sink.
type Service struct {
	opts   Options
	logger logpkg.Logger
	cursor *Cursor

	mu     sync.Mutex
	filter string
	// bumped on every filter change so a poll started under the old
	// filter does not move the reset cursor
	gen uint64
}

// New returns a Service that has not started polling. A nil Options.Cursor
// gives the service a private cursor.
func New(opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	cursor := opts.Cursor
	if cursor == nil {
		cursor = &Cursor{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	return &Service{
		opts:   opts,
		logger: logger.With(logpkg.Component("push"), logpkg.Str("topic", opts.Topic)),
		cursor: cursor,
		filter: opts.Filter,
	}
}

// Cursor exposes the service's cursor.
func (s *Service) Cursor() *Cursor { return s.cursor }

// Filter returns the active filter text.
func (s *Service) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetFilter replaces the active filter and resets the cursor, so rows the
// previous filter already moved past can surface again.
func (s *Service) SetFilter(text string) {
	s.mu.Lock()
	s.filter = text
	s.gen++
	s.cursor.Reset()
	s.mu.Unlock()
	s.logger.Info("filter changed, cursor reset", logpkg.Str("filter", text))
}

// Run polls every Interval until ctx is cancelled. A failed poll is logged
// and retried on the next tick; only a closed store ends the loop with an
// error.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, store.ErrClosed) {
					return err
				}
				s.logger.Warn("poll failed", logpkg.Err(err))
			}
		}
	}
}

// Poll runs one incremental query and forwards any new rows. It returns the
// number of rows delivered. The cursor only moves when the query succeeds.
func (s *Service) Poll(ctx context.Context) (int, error) {
	s.mu.Lock()
	filter, gen := s.filter, s.gen
	pos := s.cursor.Position()
	s.mu.Unlock()

	frame, err := s.opts.Store.Incremental(ctx, pos, filter)
	if err != nil {
		s.opts.Metrics.Poll("error", 0)
		return 0, err
	}
	if frame.Len() == 0 {
		s.opts.Metrics.Poll("empty", 0)
		return 0, nil
	}
	rows, err := frame.Records()
	if err != nil {
		s.opts.Metrics.Poll("error", 0)
		return 0, err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.opts.Metrics.Poll("stale", 0)
		return 0, nil
	}
	s.cursor.Advance(rows[len(rows)-1].Index)
	s.mu.Unlock()

	s.opts.Metrics.Poll("rows", len(rows))
	if s.opts.Sink != nil {
		if err := s.opts.Sink.Emit(ctx, s.opts.Topic, rows); err != nil {
			s.logger.Warn("sink emit failed", logpkg.Err(err), logpkg.Int("rows", len(rows)))
		}
	}
	return len(rows), nil
}
