package diaglog

import (
	"context"
	"testing"
)

func TestSearchWithCEL(t *testing.T) {
	l := openTestLog(t, Options{})
	ctx := context.Background()
	if _, err := l.Append(ctx, []Entry{
		heartbeat(7),
		procLog("info", "started"),
		procLog("error", "probe failed"),
		heartbeat(9),
		procLog("error", "lost connection"),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	cases := []struct {
		expr string
		want []uint64
	}{
		{"", []uint64{1, 2, 3, 4, 5}},
		{`kind == "heartbeat"`, []uint64{1, 4}},
		{`kind == "process_log" && level == "error"`, []uint64{3, 5}},
		{`count > 8`, []uint64{4}},
		{`message.contains("fail")`, []uint64{3}},
		{`seq >= 4`, []uint64{4, 5}},
	}
	for _, tc := range cases {
		got, _, err := l.Search(ctx, SearchOptions{Filter: tc.expr})
		if err != nil {
			t.Fatalf("%q: %v", tc.expr, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%q: got %d entries want %d", tc.expr, len(got), len(tc.want))
		}
		for i, e := range got {
			if e.Seq != tc.want[i] {
				t.Fatalf("%q: entry %d seq %d want %d", tc.expr, i, e.Seq, tc.want[i])
			}
		}
	}

	got, next, err := l.Search(ctx, SearchOptions{Filter: `level == "error"`, Limit: 1, Reverse: true})
	if err != nil || len(got) != 1 || got[0].Seq != 5 || next != 4 {
		t.Fatalf("reverse limited search: %+v next %d err %v", got, next, err)
	}
}

func TestCompileFilterErrors(t *testing.T) {
	for _, expr := range []string{"kind ==", "seq + 1", "unknown_var == 1"} {
		if _, err := CompileFilter(expr); err == nil {
			t.Fatalf("%q: expected error", expr)
		}
	}
}
