// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"
	"errors"
	"io"

	"github.com/gojue/ecaptureQ/internal/packet"
	grpcserver "github.com/gojue/ecaptureQ/internal/server/grpc"
	"github.com/gojue/ecaptureQ/internal/session"
	"github.com/gojue/ecaptureQ/internal/sink"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// GrpcTransport implements PacketsTransport over gRPC.
type GrpcTransport struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

var _ PacketsTransport = (*GrpcTransport)(nil)

// NewGrpcTransport constructs a new GrpcTransport using the provided dialer.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcTransport {
	return &GrpcTransport{dial: dial}
}

func (t *GrpcTransport) withClient(ctx context.Context, fn func(cli *grpcserver.PacketsClient) error) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(grpcserver.NewPacketsClient(conn))
}

func (t *GrpcTransport) Query(ctx context.Context, q string, cursor *uint64) (QueryResult, error) {
	var out QueryResult
	err := t.withClient(ctx, func(cli *grpcserver.PacketsClient) error {
		in, err := grpcserver.ToStruct(grpcserver.QueryRequest{Query: q, Cursor: grpcserver.IndexOf(cursor)})
		if err != nil {
			return err
		}
		res, err := cli.Query(ctx, in)
		if err != nil {
			return err
		}
		var resp grpcserver.QueryResponse
		if err := grpcserver.FromStruct(res, &resp); err != nil {
			return err
		}
		out.Rows = resp.Rows
		if resp.NextCursor != nil {
			next := uint64(*resp.NextCursor)
			out.NextCursor = &next
		}
		return nil
	})
	return out, err
}

func (t *GrpcTransport) Get(ctx context.Context, index uint64) (packet.Record, error) {
	var out packet.Record
	err := t.withClient(ctx, func(cli *grpcserver.PacketsClient) error {
		in, err := grpcserver.ToStruct(map[string]grpcserver.Index{"index": grpcserver.Index(index)})
		if err != nil {
			return err
		}
		res, err := cli.Get(ctx, in)
		if err != nil {
			return err
		}
		return grpcserver.FromStruct(res, &out)
	})
	return out, err
}

// Subscribe streams batches until ctx ends, the server closes the stream or
// onMessage fails.
func (t *GrpcTransport) Subscribe(ctx context.Context, req SubscribeRequest, onMessage func(sink.Message) error) error {
	return t.withClient(ctx, func(cli *grpcserver.PacketsClient) error {
		in, err := grpcserver.ToStruct(grpcserver.QueryRequest{Filter: req.Filter, Cursor: grpcserver.IndexOf(req.Cursor), Topic: req.Topic})
		if err != nil {
			return err
		}
		stream, err := cli.Subscribe(ctx, in)
		if err != nil {
			return err
		}
		for {
			res, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			var msg sink.Message
			if err := grpcserver.FromStruct(res, &msg); err != nil {
				return err
			}
			if err := onMessage(msg); err != nil {
				return err
			}
		}
	})
}

type statusCall func(*grpcserver.PacketsClient, context.Context) (*structpb.Struct, error)

func (t *GrpcTransport) status(ctx context.Context, call statusCall) (session.Status, error) {
	var out session.Status
	err := t.withClient(ctx, func(cli *grpcserver.PacketsClient) error {
		res, err := call(cli, ctx)
		if err != nil {
			return err
		}
		return grpcserver.FromStruct(res, &out)
	})
	return out, err
}

func (t *GrpcTransport) StartCapture(ctx context.Context) (session.Status, error) {
	return t.status(ctx, func(c *grpcserver.PacketsClient, ctx context.Context) (*structpb.Struct, error) {
		return c.StartCapture(ctx)
	})
}

func (t *GrpcTransport) StopCapture(ctx context.Context) (session.Status, error) {
	return t.status(ctx, func(c *grpcserver.PacketsClient, ctx context.Context) (*structpb.Struct, error) {
		return c.StopCapture(ctx)
	})
}

func (t *GrpcTransport) CaptureStatus(ctx context.Context) (session.Status, error) {
	return t.status(ctx, func(c *grpcserver.PacketsClient, ctx context.Context) (*structpb.Struct, error) {
		return c.CaptureStatus(ctx)
	})
}

func (t *GrpcTransport) SetFilter(ctx context.Context, filter string) (session.Status, error) {
	return t.status(ctx, func(c *grpcserver.PacketsClient, ctx context.Context) (*structpb.Struct, error) {
		in, err := grpcserver.ToStruct(map[string]string{"filter": filter})
		if err != nil {
			return nil, err
		}
		return c.SetFilter(ctx, in)
	})
}
