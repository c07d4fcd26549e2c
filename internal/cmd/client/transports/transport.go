package transports

import (
	"context"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/session"
	"github.com/gojue/ecaptureQ/internal/sink"
)

// QueryResult is one page of an incremental query.
type QueryResult struct {
	Rows       []packet.Record `json:"rows"`
	NextCursor *uint64         `json:"next_cursor,omitempty"`
}

// SubscribeRequest selects a live feed. A nil Filter follows the session's
// push feed; otherwise the server runs a private push loop from Cursor.
type SubscribeRequest struct {
	Filter *string
	Cursor *uint64
	Topic  string
}

// PacketsTransport abstracts the transport used by the CLI (gRPC/HTTP).
type PacketsTransport interface {
	Query(ctx context.Context, q string, cursor *uint64) (QueryResult, error)
	Get(ctx context.Context, index uint64) (packet.Record, error)
	Subscribe(ctx context.Context, req SubscribeRequest, onMessage func(sink.Message) error) error
	StartCapture(ctx context.Context) (session.Status, error)
	StopCapture(ctx context.Context) (session.Status, error)
	CaptureStatus(ctx context.Context) (session.Status, error)
	SetFilter(ctx context.Context, filter string) (session.Status, error)
}
