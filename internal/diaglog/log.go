package diaglog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/gojue/ecaptureQ/internal/metrics"
	"github.com/gojue/ecaptureQ/internal/packet"
	pebblestore "github.com/gojue/ecaptureQ/internal/storage/pebble"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
)

const DefaultMaxEntries = 10000

// Kind tells heartbeats and process logs apart.
type Kind string

const (
	KindHeartbeat  Kind = "heartbeat"
	KindProcessLog Kind = "process_log"
)

func (k Kind) code() byte {
	if k == KindProcessLog {
		return 2
	}
	return 1
}

func kindFromCode(c byte) (Kind, bool) {
	switch c {
	case 1:
		return KindHeartbeat, true
	case 2:
		return KindProcessLog, true
	}
	return "", false
}

// Entry is one stored diagnostic. Exactly one of Heartbeat and Log is set.
type Entry struct {
	Seq       uint64             `json:"seq"`
	Kind      Kind               `json:"kind"`
	TimeMs    int64              `json:"ts_ms"`
	Heartbeat *packet.Heartbeat  `json:"heartbeat,omitempty"`
	Log       *packet.ProcessLog `json:"log,omitempty"`
}

// Options configures a Log.
type Options struct {
	// DataDir keeps the log on disk; empty keeps it in memory.
	DataDir string
	// MaxEntries bounds retention; older entries are trimmed on append.
	MaxEntries int
	Logger     logpkg.Logger
	Metrics    *metrics.Metrics
}

// Log is an append-only, sequence-numbered store of heartbeats and capture
// process logs. It implements the ingestion loop's Diagnostics sink.
type Log struct {
	db     *pebblestore.DB
	max    int
	logger logpkg.Logger

	mu       sync.Mutex
	firstSeq uint64
	lastSeq  uint64
	notifyCh chan struct{}
}

// Open opens the diagnostics log, on Pebble's in-memory filesystem when
// opts.DataDir is empty, and recovers the last sequence number.
func Open(opts Options) (*Log, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	var hook pebblestore.MetricsHook
	if opts.Metrics != nil {
		hook = metrics.StorageHook{M: opts.Metrics}
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: opts.DataDir,
		Fsync:   pebblestore.FsyncModeInterval,
		Metrics: hook,
	})
	if err != nil {
		return nil, fmt.Errorf("diaglog: open: %w", err)
	}
	l := &Log{db: db, max: opts.MaxEntries, logger: logger.WithComponent("diaglog"), notifyCh: make(chan struct{})}
	if meta, err := db.Get(metaKey); err == nil && len(meta) >= 8 {
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	} else if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		_ = db.Close()
		return nil, fmt.Errorf("diaglog: load meta: %w", err)
	}
	l.firstSeq = l.lastSeq + 1
	if first, ok := l.scanFirst(); ok {
		l.firstSeq = first
	}
	return l, nil
}

func (l *Log) scanFirst() (uint64, bool) {
	iter, err := l.db.NewIter(l.bounds())
	if err != nil {
		return 0, false
	}
	defer iter.Close()
	if !iter.First() {
		return 0, false
	}
	return seqFromKey(iter.Key()), true
}

func (l *Log) bounds() *pebble.IterOptions {
	return &pebble.IterOptions{LowerBound: entryKey(0), UpperBound: append(entryKey(^uint64(0)), 0x00)}
}

func (l *Log) Close() error { return l.db.Close() }

// Append stores entries in one atomic batch and returns their sequence
// numbers. Seq fields of the input are ignored; a zero TimeMs is stamped
// with the current time.
func (l *Log) Append(ctx context.Context, entries []Entry) ([]uint64, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(entries))
	next := l.lastSeq
	for i, e := range entries {
		payload, err := encodePayload(e)
		if err != nil {
			return nil, err
		}
		if e.TimeMs == 0 {
			e.TimeMs = time.Now().UnixMilli()
		}
		next++
		if err := b.Set(entryKey(next), encodeRecord(encodeHeader(e.Kind, e.TimeMs), payload), nil); err != nil {
			return nil, err
		}
		seqs[i] = next
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], next)
	if err := b.Set(metaKey, meta[:], nil); err != nil {
		return nil, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	l.lastSeq = next
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})

	if l.count() > uint64(l.max) {
		if err := l.trimLocked(ctx, uint64(l.max)); err != nil {
			l.logger.Warn("trim failed", logpkg.Err(err))
		}
	}
	return seqs, nil
}

func encodePayload(e Entry) ([]byte, error) {
	switch e.Kind {
	case KindHeartbeat:
		if e.Heartbeat == nil {
			return nil, errors.New("diaglog: heartbeat entry without heartbeat")
		}
		return json.Marshal(e.Heartbeat)
	case KindProcessLog:
		if e.Log == nil {
			return nil, errors.New("diaglog: process log entry without log")
		}
		return json.Marshal(e.Log)
	}
	return nil, fmt.Errorf("diaglog: unknown kind %q", e.Kind)
}

func (l *Log) count() uint64 {
	if l.lastSeq < l.firstSeq {
		return 0
	}
	return l.lastSeq - l.firstSeq + 1
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.count())
}

// LastSeq returns the sequence of the newest entry, 0 when empty.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// TrimToMaxEntries deletes the oldest entries until at most max remain and
// returns how many were deleted.
func (l *Log) TrimToMaxEntries(ctx context.Context, max int) (int, error) {
	if max < 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	before := l.count()
	if err := l.trimLocked(ctx, uint64(max)); err != nil {
		return 0, err
	}
	return int(before - l.count()), nil
}

func (l *Log) trimLocked(ctx context.Context, max uint64) error {
	n := l.count()
	if n <= max {
		return nil
	}
	cut := l.firstSeq + (n - max)
	if err := l.db.DeleteRange(ctx, entryKey(l.firstSeq), entryKey(cut)); err != nil {
		return err
	}
	l.firstSeq = cut
	return nil
}

// RecordHeartbeat stores a producer heartbeat. Storage failures are logged.
func (l *Log) RecordHeartbeat(hb packet.Heartbeat) {
	if _, err := l.Append(context.Background(), []Entry{{Kind: KindHeartbeat, Heartbeat: &hb}}); err != nil {
		l.logger.Warn("store heartbeat failed", logpkg.Err(err))
	}
}

// RecordLog stores a capture process log line. Storage failures are logged.
func (l *Log) RecordLog(pl packet.ProcessLog) {
	if _, err := l.Append(context.Background(), []Entry{{Kind: KindProcessLog, Log: &pl}}); err != nil {
		l.logger.Warn("store process log failed", logpkg.Err(err))
	}
}
