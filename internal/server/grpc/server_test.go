package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	cfgpkg "github.com/gojue/ecaptureQ/internal/config"
	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/runtime"
	"github.com/gojue/ecaptureQ/internal/session"
	"github.com/gojue/ecaptureQ/internal/sink"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
}

func setup(t *testing.T) (*runtime.Runtime, *grpc.ClientConn) {
	t.Helper()
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfgpkg.Default(), NoCapture: true})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	srv := New(rt, nil)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer(srv.grpc)),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Close()
		_ = rt.Close()
	})
	return rt, conn
}

func seed(t *testing.T, rt *runtime.Runtime) {
	t.Helper()
	recs := []packet.Record{
		{Timestamp: 1, ProcessName: "curl", PayloadText: "GET /", Length: 5},
		{Timestamp: 2, ProcessName: "sshd", IsBinary: true, PayloadBytes: []byte{9, 9}, Length: 2},
		{Timestamp: 3, ProcessName: "curl", PayloadText: "GET /b", Length: 6},
	}
	if _, err := rt.Store().AppendBatch(context.Background(), recs); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func mustStruct(t *testing.T, v any) *structpb.Struct {
	t.Helper()
	s, err := ToStruct(v)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return s
}

func TestHealthOverGRPC(t *testing.T) {
	_, conn := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status %v", res.GetStatus())
	}
}

func TestQueryAndGetOverGRPC(t *testing.T) {
	rt, conn := setup(t)
	seed(t, rt)
	c := NewPacketsClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := c.Query(ctx, mustStruct(t, QueryRequest{Query: "pname = 'curl'"}))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var resp QueryResponse
	if err := FromStruct(out, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rows) != 2 || resp.Rows[1].Index != 2 || *resp.NextCursor != 2 {
		t.Fatalf("rows: %+v", resp)
	}

	out, err = c.Get(ctx, mustStruct(t, map[string]any{"index": 1}))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var rec packet.Record
	if err := FromStruct(out, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rec.IsBinary || len(rec.PayloadBytes) != 2 || rec.ProcessName != "sshd" {
		t.Fatalf("record: %+v", rec)
	}

	_, err = c.Get(ctx, mustStruct(t, map[string]any{"index": 42}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("missing: %v", err)
	}
	out, err = c.Get(ctx, mustStruct(t, map[string]any{"index": "1"}))
	if err != nil {
		t.Fatalf("get by string index: %v", err)
	}
	_, err = c.Get(ctx, mustStruct(t, map[string]any{"index": "18446744073709551614"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("large index should be exact and missing: %v", err)
	}
	_, err = c.Get(ctx, mustStruct(t, map[string]any{"index": float64(1 << 60)}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("inexact numeric index: %v", err)
	}
	_, err = c.Query(ctx, mustStruct(t, QueryRequest{Query: "1=1; DROP TABLE packets"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("smuggled statement: %v", err)
	}
}

func TestIndexSurvivesStruct(t *testing.T) {
	for _, v := range []uint64{0, 7, 1<<53 + 1, ^uint64(0) - 1} {
		st := mustStruct(t, QueryRequest{Cursor: IndexOf(&v)})
		var back QueryRequest
		if err := FromStruct(st, &back); err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if back.Cursor == nil || uint64(*back.Cursor) != v {
			t.Fatalf("cursor %d came back as %v", v, back.Cursor)
		}
	}
	var req getRequest
	if err := FromStruct(mustStruct(t, map[string]any{"index": 12}), &req); err != nil || uint64(*req.Index) != 12 {
		t.Fatalf("numeric index: %v %v", req.Index, err)
	}
	if err := FromStruct(mustStruct(t, map[string]any{"index": 1.5}), &req); err == nil {
		t.Fatalf("fractional index accepted")
	}
}

func TestSubscribeWithFilterOverGRPC(t *testing.T) {
	rt, conn := setup(t)
	seed(t, rt)
	c := NewPacketsClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	filter := "pname = 'curl'"
	stream, err := c.Subscribe(ctx, mustStruct(t, QueryRequest{Filter: &filter}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	out, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	var msg sink.Message
	if err := FromStruct(out, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msg.Rows) != 2 || msg.Rows[0].Index != 0 || msg.Rows[1].Index != 2 {
		t.Fatalf("message: %+v", msg)
	}
}

func TestSubscribeFollowsHub(t *testing.T) {
	rt, conn := setup(t)
	c := NewPacketsClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := c.Subscribe(ctx, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// the subscription registers on the server asynchronously
	for rt.Hub().Subscribers() == 0 {
		select {
		case <-ctx.Done():
			t.Fatalf("no subscriber")
		case <-time.After(5 * time.Millisecond):
		}
	}
	_ = rt.Hub().Emit(ctx, "packet-data", []packet.Record{{Index: 7, ProcessName: "curl"}})
	out, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	var msg sink.Message
	_ = FromStruct(out, &msg)
	if msg.Topic != "packet-data" || len(msg.Rows) != 1 || msg.Rows[0].Index != 7 {
		t.Fatalf("message: %+v", msg)
	}
}

func TestCaptureControlOverGRPC(t *testing.T) {
	_, conn := setup(t)
	c := NewPacketsClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := c.StopCapture(ctx); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("stop while idle: %v", err)
	}
	out, err := c.SetFilter(ctx, mustStruct(t, map[string]any{"filter": "pid > 1"}))
	if err != nil {
		t.Fatalf("set filter: %v", err)
	}
	var st session.Status
	if err := FromStruct(out, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Filter != "pid > 1" || st.State != "not_capturing" {
		t.Fatalf("status: %+v", st)
	}
	if _, err := c.SetFilter(ctx, mustStruct(t, map[string]any{"filter": "(pid"})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad filter: %v", err)
	}
	if _, err := c.CaptureStatus(ctx); err != nil {
		t.Fatalf("status: %v", err)
	}
}
