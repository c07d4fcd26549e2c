package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gojue/ecaptureQ/internal/capture"
	"github.com/gojue/ecaptureQ/internal/config"
	"github.com/gojue/ecaptureQ/internal/ingest"
	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/query"
	"github.com/gojue/ecaptureQ/internal/table"
	"github.com/gojue/ecaptureQ/internal/wire"
)

type idleConn struct {
	closed chan struct{}
	once   sync.Once
}

func (c *idleConn) ReadFrame() (wire.Frame, error) {
	<-c.closed
	return wire.Frame{}, &ingest.ConnectionError{URL: "idle", Err: errors.New("closed")}
}

func (c *idleConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type idleSource struct{ dials atomic.Int32 }

func (s *idleSource) String() string { return "idle://" }

func (s *idleSource) Dial(context.Context) (ingest.Conn, error) {
	s.dials.Add(1)
	return &idleConn{closed: make(chan struct{})}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	filters []string
	pending []uint64
}

func (f *fakeStore) AppendBatch(_ context.Context, recs []packet.Record) ([]uint64, error) {
	return make([]uint64, len(recs)), nil
}

func (f *fakeStore) Incremental(_ context.Context, cursor uint64, filter string) (*table.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	fr := &table.Frame{Columns: []string{packet.ColIndex}}
	for _, i := range f.pending {
		if cursor == query.Beginning || i > cursor {
			fr.Rows = append(fr.Rows, []any{i})
		}
	}
	return fr, nil
}

type chanSink struct{ ch chan []packet.Record }

func (s chanSink) Emit(_ context.Context, _ string, rows []packet.Record) error {
	s.ch <- rows
	return nil
}

type fakeSupervisor struct {
	startErr error
	exited   chan struct{}
	once     sync.Once
	stops    atomic.Int32
}

func newFakeSupervisor() *fakeSupervisor { return &fakeSupervisor{exited: make(chan struct{})} }

func (f *fakeSupervisor) Start(context.Context, string) error { return f.startErr }
func (f *fakeSupervisor) Wait() error {
	<-f.exited
	return nil
}
func (f *fakeSupervisor) RequestStop() error {
	f.stops.Add(1)
	f.exit()
	return nil
}
func (f *fakeSupervisor) exit() { f.once.Do(func() { close(f.exited) }) }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.WSURL = "idle://"
	cfg.Pipeline.CaptureGraceMs = 30
	cfg.Pipeline.IngestGraceMs = 10
	cfg.Pipeline.PushIntervalMs = 10
	return cfg
}

func newManager(t *testing.T, st *fakeStore, sup *fakeSupervisor, sink chanSink) *Manager {
	t.Helper()
	src := &idleSource{}
	opts := Options{
		Config: testConfig(),
		Store:  st,
		Source: func(string) (ingest.Source, error) { return src, nil },
	}
	if sink.ch != nil {
		opts.Sink = sink
	}
	if sup != nil {
		opts.Supervisor = func(config.Config) capture.ProcessSupervisor { return sup }
	}
	m := New(opts)
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func TestStateMachine(t *testing.T) {
	sup := newFakeSupervisor()
	m := newManager(t, &fakeStore{}, sup, chanSink{})
	ctx := context.Background()

	if err := m.Stop(); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("stop while idle: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.State() != Capturing || m.Status().SessionID == "" {
		t.Fatalf("status %+v", m.Status())
	}
	if err := m.Start(ctx); !errors.Is(err, ErrAlreadyCapturing) {
		t.Fatalf("second start: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.State() != NotCapturing {
		t.Fatalf("state %v after stop", m.State())
	}
	if sup.stops.Load() != 1 {
		t.Fatalf("capture process stop requested %d times", sup.stops.Load())
	}
	if err := m.Stop(); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("second stop: %v", err)
	}
}

func TestCaptureFailureWithinGrace(t *testing.T) {
	sup := newFakeSupervisor()
	sup.exit()
	m := newManager(t, &fakeStore{}, sup, chanSink{})
	err := m.Start(context.Background())
	var pe *capture.ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProcessError, got %v", err)
	}
	if m.State() != NotCapturing || m.Status().LastError == "" {
		t.Fatalf("status %+v", m.Status())
	}
}

func TestCaptureStartError(t *testing.T) {
	sup := newFakeSupervisor()
	sup.startErr = &capture.ProcessError{Binary: "ecapture", Op: "start", Err: errors.New("no such file")}
	m := newManager(t, &fakeStore{}, sup, chanSink{})
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if m.State() != NotCapturing {
		t.Fatalf("state %v", m.State())
	}
}

func TestUnsupportedSourceFailsStart(t *testing.T) {
	cfg := testConfig()
	cfg.WSURL = "http://127.0.0.1:1/"
	m := New(Options{Config: cfg, Store: &fakeStore{}})
	err := m.Start(context.Background())
	var ce *ingest.ConnectionError
	if !errors.As(err, &ce) || !ce.Fatal {
		t.Fatalf("want fatal ConnectionError, got %v", err)
	}
	if m.State() != NotCapturing {
		t.Fatalf("state %v", m.State())
	}
}

func TestPushRunsDuringSession(t *testing.T) {
	st := &fakeStore{pending: []uint64{0, 1, 2}}
	sink := chanSink{ch: make(chan []packet.Record, 8)}
	m := newManager(t, st, nil, sink)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case rows := <-sink.ch:
		if len(rows) != 3 || rows[0].Index != 0 {
			t.Fatalf("rows %+v", rows)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no rows pushed")
	}
	if st := m.Status(); st.Cursor != 2 || !st.Delivered {
		t.Fatalf("status %+v", st)
	}
}

func TestSetFilter(t *testing.T) {
	st := &fakeStore{pending: []uint64{4}}
	sink := chanSink{ch: make(chan []packet.Record, 8)}
	m := newManager(t, st, nil, sink)

	if err := m.SetFilter("pname = 'curl'; DROP TABLE packets"); err == nil {
		t.Fatalf("expected rejection")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-sink.ch
	if err := m.SetFilter("pname = 'curl'"); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	// the reset cursor re-delivers row 4 under the new filter
	select {
	case rows := <-sink.ch:
		if rows[0].Index != 4 {
			t.Fatalf("rows %+v", rows)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("filter change did not re-deliver")
	}
	if m.Status().Filter != "pname = 'curl'" {
		t.Fatalf("filter not recorded: %+v", m.Status())
	}
}

func TestSetFilterWhileStarting(t *testing.T) {
	st := &fakeStore{}
	sup := newFakeSupervisor()
	m := newManager(t, st, sup, chanSink{})
	m.cfg.Pipeline.CaptureGraceMs = 300

	started := make(chan error, 1)
	go func() { started <- m.Start(context.Background()) }()
	time.Sleep(100 * time.Millisecond)
	if m.State() != Capturing {
		t.Fatalf("state %v during start", m.State())
	}
	if err := m.SetFilter("pname = 'curl'"); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	if err := <-started; err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		st.mu.Lock()
		polled := append([]string(nil), st.filters...)
		st.mu.Unlock()
		if len(polled) > 0 {
			for _, f := range polled {
				if f != "pname = 'curl'" {
					t.Fatalf("polled with filter %q, want the one set during start", f)
				}
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("push service never polled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.mu.Lock()
	pushFilter := m.current.push.Filter()
	m.mu.Unlock()
	if got := m.Status().Filter; got != "pname = 'curl'" || pushFilter != got {
		t.Fatalf("status filter %q, push filter %q", got, pushFilter)
	}
}

func TestFailedStartClearsSession(t *testing.T) {
	sup := newFakeSupervisor()
	sup.startErr = errors.New("no such binary")
	m := newManager(t, &fakeStore{}, sup, chanSink{})
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected start failure")
	}
	if st := m.Status(); st.SessionID != "" || st.State != NotCapturing.String() {
		t.Fatalf("status after failed start %+v", st)
	}
	if err := m.SetFilter("dst_port = 443"); err != nil {
		t.Fatalf("set filter: %v", err)
	}
}

func TestPatchConfig(t *testing.T) {
	m := newManager(t, &fakeStore{}, nil, chanSink{})
	url := "ws://10.0.0.1:28257/"
	filter := "dst_port = 443"
	cfg, err := m.PatchConfig(config.Patch{WSURL: &url, Filter: &filter})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if cfg.WSURL != url || cfg.Filter != filter || cfg.CaptureArgs != config.Default().CaptureArgs {
		t.Fatalf("patched config %+v", cfg)
	}
}

func TestProcessExitEndsSession(t *testing.T) {
	sup := newFakeSupervisor()
	m := newManager(t, &fakeStore{}, sup, chanSink{})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	sup.exit()
	deadline := time.Now().Add(2 * time.Second)
	for m.State() == Capturing {
		if time.Now().After(deadline) {
			t.Fatalf("session kept capturing after process exit")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if m.Status().LastError == "" {
		t.Fatalf("exit not reported")
	}
	<-sess.done
	if sess.ctx.Err() == nil {
		t.Fatalf("session context still live after the session ended")
	}
}
