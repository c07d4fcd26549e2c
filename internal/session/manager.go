package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gojue/ecaptureQ/internal/capture"
	"github.com/gojue/ecaptureQ/internal/config"
	"github.com/gojue/ecaptureQ/internal/ingest"
	"github.com/gojue/ecaptureQ/internal/metrics"
	"github.com/gojue/ecaptureQ/internal/push"
	"github.com/gojue/ecaptureQ/internal/query"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunState is the shared capture state.
type RunState int32

const (
	NotCapturing RunState = iota
	Capturing
)

func (s RunState) String() string {
	if s == Capturing {
		return "capturing"
	}
	return "not_capturing"
}

var (
	ErrAlreadyCapturing = errors.New("session: already capturing")
	ErrNotCapturing     = errors.New("session: not capturing")
	errServiceFailed    = errors.New("session: service failed during startup")
)

// Store is what a session needs from the store handle.
type Store interface {
	ingest.Appender
	push.Querier
}

// Options wires a Manager. Supervisor may be nil when the capture process
// is managed elsewhere; Source defaults to ingest.NewSource.
type Options struct {
	Config      config.Config
	Store       Store
	Sink        push.Sink
	Diagnostics ingest.Diagnostics
	Supervisor  func(cfg config.Config) capture.ProcessSupervisor
	Source      func(url string) (ingest.Source, error)
	Logger      logpkg.Logger
	Metrics     *metrics.Metrics
}

// Status is a point-in-time view of the manager.
type Status struct {
	State     string    `json:"state"`
	SessionID string    `json:"session_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Filter    string    `json:"filter"`
	Cursor    uint64    `json:"cursor"`
	Delivered bool      `json:"delivered"`
	LastError string    `json:"last_error,omitempty"`
}

type session struct {
	id      string
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	push    *push.Service
	done    chan struct{}
	err     error
}

// Manager drives the NotCapturing -> Capturing -> NotCapturing cycle. Each
// capture session gets its own cancellation token shared by the capture
// process, the ingestion loop and the push service.
type Manager struct {
	opts   Options
	logger logpkg.Logger
	state  atomic.Int32
	cursor push.Cursor

	// serializes Start and Stop
	op sync.Mutex

	mu      sync.Mutex
	cfg     config.Config
	current *session
	lastErr error
}

// New returns a Manager in the NotCapturing state.
func New(opts Options) *Manager {
	if opts.Source == nil {
		opts.Source = ingest.NewSource
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	return &Manager{
		opts:   opts,
		logger: logger.WithComponent("session"),
		cfg:    opts.Config,
	}
}

// State returns the current run-state.
func (m *Manager) State() RunState { return RunState(m.state.Load()) }

// Capturing reports whether a session is running. The ingestion loop only
// reconnects while it is true.
func (m *Manager) Capturing() bool { return m.State() == Capturing }

// Config returns the active configuration.
func (m *Manager) Config() config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// PatchConfig applies p. Source and capture arguments take effect on the
// next Start; a filter change applies immediately.
func (m *Manager) PatchConfig(p config.Patch) (config.Config, error) {
	if p.Filter != nil {
		if err := m.SetFilter(*p.Filter); err != nil {
			return m.Config(), err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = m.cfg.ApplyPatch(p)
	return m.cfg, nil
}

// SetFilter validates text and makes it the active push filter, resetting
// the delivery cursor.
func (m *Manager) SetFilter(text string) error {
	if _, err := query.Build(0, text); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Filter = text
	if m.current != nil && m.current.push != nil {
		m.current.push.SetFilter(text)
	} else {
		m.cursor.Reset()
	}
	return nil
}

// Status reports the run-state, the active filter and the delivery cursor,
// plus the current session while one is running or starting.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:     m.State().String(),
		Filter:    m.cfg.Filter,
		Cursor:    m.cursor.Value(),
		Delivered: m.cursor.Delivered(),
	}
	if m.current != nil {
		st.SessionID = m.current.id
		st.StartedAt = m.current.started
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Start launches a capture session. It returns once every sub-service has
// survived its startup grace window, or with the reason the first one
// failed.
func (m *Manager) Start(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()
	if !m.state.CompareAndSwap(int32(NotCapturing), int32(Capturing)) {
		return ErrAlreadyCapturing
	}
	logger := m.logger

	id := uuid.NewString()
	sessCtx, cancel := context.WithCancel(logpkg.ContextWithSession(context.Background(), id))
	g, gctx := errgroup.WithContext(sessCtx)
	sess := &session{id: id, started: time.Now(), ctx: sessCtx, cancel: cancel, done: make(chan struct{})}
	logger = logger.WithContext(sess.ctx)

	// The push service is registered before the grace windows so a filter
	// set while the session is starting reaches it.
	m.mu.Lock()
	cfg := m.cfg
	sess.push = push.New(push.Options{
		Store:    m.opts.Store,
		Sink:     m.opts.Sink,
		Topic:    cfg.PushTopic,
		Interval: cfg.Pipeline.PushInterval(),
		Filter:   cfg.Filter,
		Cursor:   &m.cursor,
		Logger:   logger,
		Metrics:  m.opts.Metrics,
	})
	m.current = sess
	m.mu.Unlock()

	abort := func(reason error) error {
		cancel()
		werr := g.Wait()
		m.state.Store(int32(NotCapturing))
		if errors.Is(reason, errServiceFailed) && werr != nil {
			reason = werr
		}
		m.mu.Lock()
		if m.current == sess {
			m.current = nil
		}
		m.lastErr = reason
		m.mu.Unlock()
		logger.Error("session start failed", logpkg.Err(reason))
		return reason
	}

	if m.opts.Supervisor != nil {
		sup := m.opts.Supervisor(cfg)
		g.Go(func() error { return capture.Run(gctx, sup, cfg.CaptureArgs) })
		if err := m.grace(ctx, gctx, cfg.Pipeline.CaptureGrace()); err != nil {
			return abort(err)
		}
	}

	src, err := m.opts.Source(cfg.WSURL)
	if err != nil {
		return abort(err)
	}
	loop := ingest.New(ingest.Options{
		Source:           src,
		Store:            m.opts.Store,
		Diagnostics:      m.opts.Diagnostics,
		Capturing:        m.Capturing,
		BatchSize:        cfg.Pipeline.BatchSize,
		FlushInterval:    cfg.Pipeline.FlushInterval(),
		ReconnectBackoff: cfg.Pipeline.ReconnectBackoff(),
		Logger:           logger,
		Metrics:          m.opts.Metrics,
	})
	g.Go(func() error { return loop.Run(gctx) })
	if err := m.grace(ctx, gctx, cfg.Pipeline.IngestGrace()); err != nil {
		return abort(err)
	}

	g.Go(func() error { return sess.push.Run(gctx) })

	m.mu.Lock()
	m.lastErr = nil
	m.mu.Unlock()

	go func() {
		err := g.Wait()
		sess.err = err
		close(sess.done)
		m.ended(sess, err)
	}()
	logger.Info("capture session started", logpkg.Str("source", src.String()))
	return nil
}

// grace waits d for the session's services to fail. A failure or a cancelled
// start request aborts the start.
func (m *Manager) grace(ctx, gctx context.Context, d time.Duration) error {
	if d <= 0 {
		if gctx.Err() != nil {
			return errServiceFailed
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-gctx.Done():
		return errServiceFailed
	case <-ctx.Done():
		return fmt.Errorf("session: start cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// ended runs when every task of sess has returned. A session that fails on
// its own while running leaves the capturing state.
func (m *Manager) ended(sess *session, err error) {
	sess.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != sess {
		return
	}
	m.current = nil
	if err != nil {
		m.lastErr = err
		m.state.Store(int32(NotCapturing))
		m.logger.Error("capture session failed", logpkg.Str(logpkg.SessionKey, sess.id), logpkg.Err(err))
	}
}

// Stop broadcasts shutdown to the running session and waits for its tasks.
func (m *Manager) Stop() error {
	m.op.Lock()
	defer m.op.Unlock()
	if !m.state.CompareAndSwap(int32(Capturing), int32(NotCapturing)) {
		return ErrNotCapturing
	}
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return nil
	}
	sess.cancel()
	<-sess.done
	m.logger.Info("capture session stopped", logpkg.Str(logpkg.SessionKey, sess.id))
	return nil
}
