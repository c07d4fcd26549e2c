package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/query"
	"github.com/gojue/ecaptureQ/internal/table"
)

// Handle is the only way other components reach the table.
type Handle interface {
	AppendBatch(ctx context.Context, recs []packet.Record) ([]uint64, error)
	Query(ctx context.Context, sql string) (*table.Frame, error)
	Incremental(ctx context.Context, cursor uint64, filter string) (*table.Frame, error)
	GetByIndex(ctx context.Context, index uint64) (packet.Record, error)
}

// inbox is the actor's request queue shared by all clients. It closes when
// the last client is closed.
type inbox struct {
	mu     sync.RWMutex
	ch     chan request
	refs   int
	closed bool
}

// Client is a cloneable handle to an Actor. Each clone must be closed
// independently.
type Client struct {
	inbox    *inbox
	done     <-chan struct{}
	released atomic.Bool
}

var _ Handle = (*Client)(nil)

// Clone returns a new handle sharing the same actor.
func (c *Client) Clone() *Client {
	c.inbox.mu.Lock()
	defer c.inbox.mu.Unlock()
	if !c.inbox.closed {
		c.inbox.refs++
	}
	return &Client{inbox: c.inbox, done: c.done}
}

// Close releases this handle. When the last handle is released the actor's
// inbox closes.
func (c *Client) Close() {
	if c.released.Swap(true) {
		return
	}
	c.inbox.mu.Lock()
	defer c.inbox.mu.Unlock()
	if c.inbox.closed {
		return
	}
	c.inbox.refs--
	if c.inbox.refs <= 0 {
		c.inbox.closed = true
		close(c.inbox.ch)
	}
}

func (c *Client) send(ctx context.Context, req request) error {
	if c.released.Load() {
		return ErrClosed
	}
	c.inbox.mu.RLock()
	defer c.inbox.mu.RUnlock()
	if c.inbox.closed {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.inbox.ch <- req:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await waits for a reply. Once the actor accepted a request it always
// answers before Done closes, so a ready reply wins over Done.
func await[T any](ctx context.Context, c *Client, resp <-chan T) (T, error) {
	var zero T
	select {
	case v := <-resp:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		select {
		case v := <-resp:
			return v, nil
		default:
			return zero, ErrClosed
		}
	}
}

// AppendBatch appends recs and returns the indices assigned to them, in
// order. An empty batch is a no-op.
func (c *Client) AppendBatch(ctx context.Context, recs []packet.Record) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	resp := make(chan appendResp, 1)
	if err := c.send(ctx, appendReq{recs: recs, resp: resp}); err != nil {
		return nil, err
	}
	r, err := await(ctx, c, resp)
	if err != nil {
		return nil, err
	}
	return r.indices, r.err
}

// Query runs sql against a snapshot taken after every previously accepted
// request. Engine failures are *table.QueryError.
func (c *Client) Query(ctx context.Context, sql string) (*table.Frame, error) {
	resp := make(chan queryResp, 1)
	if err := c.send(ctx, queryReq{ctx: ctx, sql: sql, resp: resp}); err != nil {
		return nil, err
	}
	r, err := await(ctx, c, resp)
	if err != nil {
		return nil, err
	}
	return r.frame, r.err
}

// Incremental returns rows with index > cursor matching filter, which is a
// full SELECT or a bare predicate.
func (c *Client) Incremental(ctx context.Context, cursor uint64, filter string) (*table.Frame, error) {
	q, err := query.Build(cursor, filter)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, q)
}

// GetByIndex returns the full record, payload included.
func (c *Client) GetByIndex(ctx context.Context, index uint64) (packet.Record, error) {
	f, err := c.Query(ctx, query.ByIndex(index).String())
	if err != nil {
		return packet.Record{}, err
	}
	recs, err := f.Records()
	if err != nil {
		return packet.Record{}, err
	}
	if len(recs) == 0 {
		return packet.Record{}, ErrNotFound
	}
	return recs[0], nil
}

// Stats reports the actor's row count.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	resp := make(chan Stats, 1)
	if err := c.send(ctx, statsReq{resp: resp}); err != nil {
		return Stats{}, err
	}
	return await(ctx, c, resp)
}
