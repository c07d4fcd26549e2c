package grpcserver

import (
	"context"
	"time"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/push"
	"github.com/gojue/ecaptureQ/internal/query"
	"github.com/gojue/ecaptureQ/internal/runtime"
	"github.com/gojue/ecaptureQ/internal/sink"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type packetsSvc struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

var _ PacketsServer = (*packetsSvc)(nil)

// QueryRequest is the body of Query and Subscribe. A nil Cursor starts
// before the first row; a nil Filter on Subscribe follows the session feed.
type QueryRequest struct {
	Query  string  `json:"q,omitempty"`
	Cursor *Index  `json:"cursor,omitempty"`
	Filter *string `json:"filter,omitempty"`
	Topic  string  `json:"topic,omitempty"`
}

func (r QueryRequest) position() uint64 {
	if r.Cursor == nil {
		return query.Beginning
	}
	return uint64(*r.Cursor)
}

// QueryResponse mirrors the REST query body, with next_cursor as a string.
// Row indices inside rows stay numbers and are exact below 2^53.
type QueryResponse struct {
	Rows       []packet.Record `json:"rows"`
	NextCursor *Index          `json:"next_cursor,omitempty"`
}

func (s *packetsSvc) Query(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req QueryRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	frame, err := s.rt.Store().Incremental(ctx, req.position(), req.Query)
	if err != nil {
		return nil, toStatus(err)
	}
	rows, err := frame.Records()
	if err != nil {
		return nil, toStatus(err)
	}
	resp := QueryResponse{Rows: rows}
	if resp.Rows == nil {
		resp.Rows = []packet.Record{}
	}
	if n := len(rows); n > 0 {
		last := Index(rows[n-1].Index)
		resp.NextCursor = &last
	}
	return ToStruct(resp)
}

type getRequest struct {
	Index *Index `json:"index"`
}

func (s *packetsSvc) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req getRequest
	if err := FromStruct(in, &req); err != nil || req.Index == nil {
		return nil, status.Error(codes.InvalidArgument, "index is required")
	}
	rec, err := s.rt.Store().GetByIndex(ctx, uint64(*req.Index))
	if err != nil {
		return nil, toStatus(err)
	}
	return ToStruct(rec)
}

// Subscribe streams sink.Message documents. With a filter the caller gets a
// private push loop and cursor; without one it shares the session feed.
func (s *packetsSvc) Subscribe(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	var req QueryRequest
	if err := FromStruct(in, &req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	send := func(topic string, rows []packet.Record) error {
		b, err := sink.Encode(topic, rows, time.Now())
		if err != nil {
			return err
		}
		msg, err := RawToStruct(b)
		if err != nil {
			return err
		}
		return stream.Send(msg)
	}
	ctx := stream.Context()

	if req.Filter == nil {
		sub := s.rt.Hub().Subscribe(req.Topic)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case b, ok := <-sub.C():
				if !ok {
					return nil
				}
				if err := send(b.Topic, b.Rows); err != nil {
					return err
				}
			}
		}
	}

	if _, err := query.Build(0, *req.Filter); err != nil {
		return toStatus(err)
	}
	cursor := &push.Cursor{}
	if req.Cursor != nil {
		cursor.Advance(uint64(*req.Cursor))
	}
	cfg := s.rt.Config()
	topic := req.Topic
	if topic == "" {
		topic = cfg.PushTopic
	}
	svc := push.New(push.Options{
		Store: s.rt.Store(),
		Sink: push.SinkFunc(func(_ context.Context, t string, rows []packet.Record) error {
			return send(t, rows)
		}),
		Topic:    topic,
		Interval: cfg.Pipeline.PushInterval(),
		Filter:   *req.Filter,
		Cursor:   cursor,
		Logger:   s.logger,
		Metrics:  s.rt.Metrics(),
	})
	return toStatus(svc.Run(ctx))
}

func (s *packetsSvc) status() (*structpb.Struct, error) {
	return ToStruct(s.rt.Sessions().Status())
}

func (s *packetsSvc) StartCapture(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.rt.Sessions().Start(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.status()
}

func (s *packetsSvc) StopCapture(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	if err := s.rt.Sessions().Stop(); err != nil {
		return nil, toStatus(err)
	}
	return s.status()
}

func (s *packetsSvc) CaptureStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return s.status()
}

type filterRequest struct {
	Filter string `json:"filter"`
}

func (s *packetsSvc) SetFilter(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req filterRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.rt.Sessions().SetFilter(req.Filter); err != nil {
		return nil, toStatus(err)
	}
	return s.status()
}
