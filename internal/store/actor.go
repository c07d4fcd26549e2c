package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gojue/ecaptureQ/internal/metrics"
	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/table"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
)

var (
	// ErrClosed is returned by a Client whose actor has stopped or which was
	// itself closed.
	ErrClosed = errors.New("store: actor closed")
	// ErrInboxClosed is returned by Run when every client has been closed
	// without the actor being shut down.
	ErrInboxClosed = errors.New("store: all inputs closed without shutdown")
	// ErrNotFound is returned by GetByIndex for an index that was never assigned.
	ErrNotFound = errors.New("store: record not found")
)

// DefaultInboxSize bounds the actor's request queue.
const DefaultInboxSize = 128

// Options configures New.
type Options struct {
	InboxSize int
	Logger    logpkg.Logger
	Metrics   *metrics.Metrics
}

// Actor exclusively owns a table. All appends and snapshot creation happen
// on the goroutine running Run, in the order requests arrive.
type Actor struct {
	tbl     *table.Table
	inbox   *inbox
	done    chan struct{}
	logger  logpkg.Logger
	metrics *metrics.Metrics

	nextIndex uint64
	queries   sync.WaitGroup
}

type request interface{ isRequest() }

type appendReq struct {
	recs []packet.Record
	resp chan appendResp
}

type appendResp struct {
	indices []uint64
	err     error
}

type queryReq struct {
	ctx  context.Context
	sql  string
	resp chan queryResp
}

type queryResp struct {
	frame *table.Frame
	err   error
}

type statsReq struct {
	resp chan Stats
}

func (appendReq) isRequest() {}
func (queryReq) isRequest()  {}
func (statsReq) isRequest()  {}

// Stats describes the table as seen by the actor.
type Stats struct {
	Rows      uint64 `json:"rows"`
	NextIndex uint64 `json:"next_index"`
}

// New creates an actor owning tbl and the first client handle for it. Run
// must be called to start processing.
func New(tbl *table.Table, opts Options) (*Actor, *Client) {
	size := opts.InboxSize
	if size <= 0 {
		size = DefaultInboxSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	a := &Actor{
		tbl:     tbl,
		inbox:   &inbox{ch: make(chan request, size), refs: 1},
		done:    make(chan struct{}),
		logger:  logger.With(logpkg.Component("store")),
		metrics: opts.Metrics,
	}
	return a, &Client{inbox: a.inbox, done: a.done}
}

// Done is closed once Run has returned.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Run processes requests until ctx is cancelled (returns nil) or every
// client is closed (returns ErrInboxClosed). Cancellation is checked before
// each request, so a steady stream of requests cannot delay shutdown. The
// table is closed on return.
func (a *Actor) Run(ctx context.Context) error {
	defer func() {
		a.queries.Wait()
		if err := a.tbl.Close(); err != nil {
			a.logger.Warn("close table", logpkg.Err(err))
		}
		close(a.done)
	}()
	a.logger.Info("store actor started")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("store actor shutting down", logpkg.Uint64("rows", a.nextIndex))
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			a.logger.Info("store actor shutting down", logpkg.Uint64("rows", a.nextIndex))
			return nil
		case req, ok := <-a.inbox.ch:
			if !ok {
				if ctx.Err() != nil {
					a.logger.Info("store actor shutting down", logpkg.Uint64("rows", a.nextIndex))
					return nil
				}
				a.logger.Error("store inbox closed without shutdown")
				return ErrInboxClosed
			}
			a.handle(ctx, req)
		}
	}
}

func (a *Actor) handle(ctx context.Context, req request) {
	switch r := req.(type) {
	case appendReq:
		indices, err := a.appendBatch(ctx, r.recs)
		r.resp <- appendResp{indices: indices, err: err}
	case queryReq:
		a.query(r)
	case statsReq:
		r.resp <- Stats{Rows: a.nextIndex, NextIndex: a.nextIndex}
	}
}

// appendBatch stamps recs with consecutive indices and appends them. The
// index counter only advances when the append succeeds.
func (a *Actor) appendBatch(ctx context.Context, recs []packet.Record) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	stamped := make([]packet.Record, len(recs))
	indices := make([]uint64, len(recs))
	for i := range recs {
		stamped[i] = recs[i]
		stamped[i].Index = a.nextIndex + uint64(i)
		indices[i] = stamped[i].Index
	}
	if err := a.tbl.Append(ctx, stamped); err != nil {
		a.logger.Error("append batch", logpkg.Int("records", len(recs)), logpkg.Err(err))
		return nil, err
	}
	a.nextIndex += uint64(len(recs))
	a.metrics.Appended(a.nextIndex)
	a.logger.Debug("batch appended", logpkg.Int("records", len(recs)), logpkg.Uint64("next_index", a.nextIndex))
	return indices, nil
}

// query pins a snapshot on the actor goroutine and executes it elsewhere,
// so a slow query never holds up appends queued behind it.
func (a *Actor) query(r queryReq) {
	snap, err := a.tbl.Snapshot(r.ctx)
	if err != nil {
		r.resp <- queryResp{err: err}
		return
	}
	a.queries.Add(1)
	go func() {
		defer a.queries.Done()
		defer snap.Close()
		start := time.Now()
		frame, err := snap.Query(r.ctx, r.sql)
		a.metrics.Query(time.Since(start), err)
		if err != nil {
			a.logger.Debug("query failed", logpkg.Str("sql", r.sql), logpkg.Err(err))
		}
		r.resp <- queryResp{frame: frame, err: err}
	}()
}
