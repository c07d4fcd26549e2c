package table

import (
	"context"
	"errors"
	"testing"

	"github.com/gojue/ecaptureQ/internal/packet"
)

func openTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := Open(context.Background(), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = tbl.Close() })
	return tbl
}

func recs(from uint64, n int) []packet.Record {
	out := make([]packet.Record, n)
	for i := range out {
		idx := from + uint64(i)
		out[i] = packet.Record{
			Index:       idx,
			Timestamp:   int64(idx) * 10,
			ProcessName: "curl",
			SrcAddr:     "10.0.0.1",
			DstPort:     443,
			PayloadText: "hello",
			Length:      5,
		}
	}
	return out
}

func TestAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	tbl := openTable(t)
	if err := tbl.Append(ctx, recs(0, 3)); err != nil {
		t.Fatalf("append: %v", err)
	}
	bin := packet.Record{Index: 3, Timestamp: 30, IsBinary: true, PayloadBytes: []byte{0xff, 0x00}, ProcessName: "nginx"}
	if err := tbl.Append(ctx, []packet.Record{bin}); err != nil {
		t.Fatalf("append: %v", err)
	}
	snap, err := tbl.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer snap.Close()
	if snap.Rows() != 4 {
		t.Fatalf("rows=%d", snap.Rows())
	}
	f, err := snap.Query(ctx, `SELECT * FROM packets ORDER BY "index"`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	got, err := f.Records()
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len=%d", len(got))
	}
	if got[1].Timestamp != 10 || got[1].PayloadText != "hello" || got[1].IsBinary {
		t.Fatalf("row 1: %+v", got[1])
	}
	if !got[3].IsBinary || string(got[3].PayloadBytes) != "\xff\x00" || got[3].PayloadText != "" {
		t.Fatalf("row 3: %+v", got[3])
	}
	if got[0].PayloadBytes != nil {
		t.Fatalf("text row should have no bytes")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	tbl := openTable(t)
	if err := tbl.Append(ctx, recs(0, 2)); err != nil {
		t.Fatalf("append: %v", err)
	}
	snap, err := tbl.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer snap.Close()
	if err := tbl.Append(ctx, recs(2, 5)); err != nil {
		t.Fatalf("append while snapshot open: %v", err)
	}
	f, err := snap.Query(ctx, `SELECT "index" FROM packets`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("snapshot saw %d rows, want 2", f.Len())
	}
	n, err := tbl.Count(ctx)
	if err != nil || n != 7 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestQueryError(t *testing.T) {
	ctx := context.Background()
	tbl := openTable(t)
	snap, err := tbl.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer snap.Close()
	_, err = snap.Query(ctx, `SELECT no_such_column FROM packets`)
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("want QueryError, got %v", err)
	}
	if qe.SQL == "" {
		t.Fatalf("sql not recorded")
	}
}

func TestAppendEmptyAndClosed(t *testing.T) {
	ctx := context.Background()
	tbl := openTable(t)
	if err := tbl.Append(ctx, nil); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	_ = tbl.Close()
	if err := tbl.Append(ctx, recs(0, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if _, err := tbl.Snapshot(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

func TestFrameMaps(t *testing.T) {
	f := &Frame{Columns: []string{"index", "pname"}, Rows: [][]any{{uint64(1), "curl"}}}
	m := f.Maps()
	if len(m) != 1 || m[0]["pname"] != "curl" {
		t.Fatalf("maps: %v", m)
	}
	rs, err := f.Records()
	if err != nil || rs[0].Index != 1 || rs[0].ProcessName != "curl" {
		t.Fatalf("records: %+v %v", rs, err)
	}
}
