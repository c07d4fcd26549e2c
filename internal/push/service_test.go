package push

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/query"
	"github.com/gojue/ecaptureQ/internal/store"
	"github.com/gojue/ecaptureQ/internal/table"
)

type call struct {
	cursor uint64
	filter string
}

// fakeStore answers each Incremental call with the next scripted frame.
type fakeStore struct {
	mu     sync.Mutex
	calls  []call
	frames []*table.Frame
	errs   []error
}

func (f *fakeStore) Incremental(_ context.Context, cursor uint64, filter string) (*table.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{cursor, filter})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.frames) == 0 {
		return &table.Frame{Columns: []string{packet.ColIndex}}, nil
	}
	fr := f.frames[0]
	f.frames = f.frames[1:]
	return fr, nil
}

func frameOf(indices ...uint64) *table.Frame {
	fr := &table.Frame{Columns: []string{packet.ColIndex, packet.ColPName}}
	for _, i := range indices {
		fr.Rows = append(fr.Rows, []any{i, "curl"})
	}
	return fr
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]packet.Record
	topics  []string
	err     error
}

func (s *recordingSink) Emit(_ context.Context, topic string, rows []packet.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	s.batches = append(s.batches, rows)
	return s.err
}

func TestCursorAdvance(t *testing.T) {
	st := &fakeStore{frames: []*table.Frame{frameOf(5, 7, 9)}}
	svc := New(Options{Store: st, Sink: &recordingSink{}})
	n, err := svc.Poll(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("poll: n=%d err=%v", n, err)
	}
	if got := svc.Cursor().Value(); got != 9 {
		t.Fatalf("cursor=%d want 9", got)
	}
	n, err = svc.Poll(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("empty poll: n=%d err=%v", n, err)
	}
	if got := svc.Cursor().Value(); got != 9 {
		t.Fatalf("cursor moved on empty poll: %d", got)
	}
}

func TestFilterChangeResetsCursor(t *testing.T) {
	st := &fakeStore{frames: []*table.Frame{frameOf(3, 4)}}
	sink := &recordingSink{}
	svc := New(Options{Store: st, Sink: sink, Filter: "pname = 'curl'"})
	ctx := context.Background()

	if n, _ := svc.Poll(ctx); n != 2 {
		t.Fatalf("first poll delivered %d rows", n)
	}
	if svc.Cursor().Value() != 4 {
		t.Fatalf("cursor=%d want 4", svc.Cursor().Value())
	}
	if n, _ := svc.Poll(ctx); n != 0 {
		t.Fatalf("second poll delivered %d rows", n)
	}
	if svc.Cursor().Value() != 4 {
		t.Fatalf("cursor=%d want 4", svc.Cursor().Value())
	}

	svc.SetFilter("pname = 'wget'")
	if svc.Cursor().Value() != 0 || svc.Cursor().Delivered() {
		t.Fatalf("cursor not reset")
	}
	_, _ = svc.Poll(ctx)

	want := []call{
		{query.Beginning, "pname = 'curl'"},
		{4, "pname = 'curl'"},
		{query.Beginning, "pname = 'wget'"},
	}
	if len(st.calls) != len(want) {
		t.Fatalf("calls=%v", st.calls)
	}
	for i := range want {
		if st.calls[i] != want[i] {
			t.Fatalf("call %d: got %+v want %+v", i, st.calls[i], want[i])
		}
	}
	if len(sink.batches) != 1 || sink.topics[0] != DefaultTopic {
		t.Fatalf("sink saw %d batches topics %v", len(sink.batches), sink.topics)
	}
}

func TestQueryFailureKeepsCursor(t *testing.T) {
	st := &fakeStore{
		frames: []*table.Frame{frameOf(1), frameOf(2)},
		errs:   []error{nil, errors.New("boom")},
	}
	svc := New(Options{Store: st})
	ctx := context.Background()
	if _, err := svc.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if _, err := svc.Poll(ctx); err == nil {
		t.Fatalf("expected error")
	}
	if svc.Cursor().Value() != 1 {
		t.Fatalf("cursor=%d want 1", svc.Cursor().Value())
	}
}

func TestSinkFailureStillAdvances(t *testing.T) {
	st := &fakeStore{frames: []*table.Frame{frameOf(6)}}
	svc := New(Options{Store: st, Sink: &recordingSink{err: errors.New("down")}})
	if n, err := svc.Poll(context.Background()); err != nil || n != 1 {
		t.Fatalf("poll: n=%d err=%v", n, err)
	}
	if svc.Cursor().Value() != 6 {
		t.Fatalf("cursor=%d", svc.Cursor().Value())
	}
}

func TestCursorNeverMovesBack(t *testing.T) {
	var c Cursor
	if c.Position() != query.Beginning {
		t.Fatalf("fresh position %d", c.Position())
	}
	c.Advance(0)
	if !c.Delivered() || c.Position() != 0 {
		t.Fatalf("after row 0: delivered=%v position=%d", c.Delivered(), c.Position())
	}
	c.Advance(8)
	if c.Advance(3) {
		t.Fatalf("advanced backwards")
	}
	if c.Value() != 8 {
		t.Fatalf("value=%d", c.Value())
	}
}

func TestRunStopsOnClosedStore(t *testing.T) {
	st := &fakeStore{errs: []error{store.ErrClosed}}
	svc := New(Options{Store: st, Interval: 5 * time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, store.ErrClosed) {
			t.Fatalf("got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	svc := New(Options{Store: &fakeStore{}, Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestPushAgainstStore(t *testing.T) {
	tbl, err := table.Open(context.Background(), table.Options{})
	if err != nil {
		t.Fatalf("open table: %v", err)
	}
	actor, client := store.New(tbl, store.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-actor.Done()
	}()
	go func() { _ = actor.Run(ctx) }()

	recs := []packet.Record{
		{Timestamp: 1, ProcessName: "curl", PayloadText: "a"},
		{Timestamp: 2, ProcessName: "wget", PayloadText: "b"},
		{Timestamp: 3, ProcessName: "curl", PayloadText: "c"},
	}
	if _, err := client.AppendBatch(ctx, recs); err != nil {
		t.Fatalf("append: %v", err)
	}
	sink := &recordingSink{}
	svc := New(Options{Store: client, Sink: sink, Filter: "pname = 'curl'"})
	n, err := svc.Poll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("poll: n=%d err=%v", n, err)
	}
	got := sink.batches[0]
	if got[0].Index != 0 || got[1].Index != 2 || got[0].PayloadText != "" {
		t.Fatalf("unexpected rows %+v", got)
	}
	if svc.Cursor().Value() != 2 {
		t.Fatalf("cursor=%d", svc.Cursor().Value())
	}
}
