package diaglog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gojue/ecaptureQ/internal/packet"
)

// ReadOptions selects a page of entries. Start is inclusive; 0 begins at the
// oldest entry, or the newest when Reverse is set.
type ReadOptions struct {
	Start   uint64
	Limit   int
	Reverse bool
}

// Read returns up to Limit entries and the sequence to continue from, which
// is 0 when the scan reached the end.
func (l *Log) Read(opts ReadOptions) ([]Entry, uint64) {
	var out []Entry
	next := l.scan(opts, func(e Entry) bool {
		out = append(out, e)
		return opts.Limit <= 0 || len(out) < opts.Limit
	})
	return out, next
}

// scan visits entries in order until visit returns false, then returns the
// sequence of the entry after the last one visited (0 at the end).
func (l *Log) scan(opts ReadOptions, visit func(Entry) bool) uint64 {
	iter, err := l.db.NewIter(l.bounds())
	if err != nil {
		return 0
	}
	defer iter.Close()

	var ok bool
	switch {
	case opts.Reverse && opts.Start == 0:
		ok = iter.Last()
	case opts.Reverse:
		ok = iter.SeekLT(entryKey(opts.Start + 1))
	case opts.Start == 0:
		ok = iter.First()
	default:
		ok = iter.SeekGE(entryKey(opts.Start))
	}
	step := iter.Next
	if opts.Reverse {
		step = iter.Prev
	}
	for ; ok; ok = step() {
		e, valid := decodeEntry(iter.Key(), iter.Value())
		if !valid {
			continue
		}
		if !visit(e) {
			if step() {
				return seqFromKey(iter.Key())
			}
			return 0
		}
	}
	return 0
}

func decodeEntry(key, value []byte) (Entry, bool) {
	header, payload, ok := decodeRecord(value)
	if !ok {
		return Entry{}, false
	}
	kind, ts, ok := decodeHeader(header)
	if !ok {
		return Entry{}, false
	}
	e := Entry{Seq: seqFromKey(key), Kind: kind, TimeMs: ts}
	switch kind {
	case KindHeartbeat:
		e.Heartbeat = new(packet.Heartbeat)
		if json.Unmarshal(payload, e.Heartbeat) != nil {
			return Entry{}, false
		}
	case KindProcessLog:
		e.Log = new(packet.ProcessLog)
		if json.Unmarshal(payload, e.Log) != nil {
			return Entry{}, false
		}
	}
	return e, true
}

// WaitForAppend blocks until an append happens after the call, the timeout
// elapses or ctx ends. It reports whether an append woke it.
func (l *Log) WaitForAppend(ctx context.Context, timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	var tc <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		tc = t.C
	}
	select {
	case <-ch:
		return true
	case <-tc:
		return false
	case <-ctx.Done():
		return false
	}
}
