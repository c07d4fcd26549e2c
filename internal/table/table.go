package table

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/marcboeker/go-duckdb/v2"
)

// ErrClosed is returned by operations on a closed Table.
var ErrClosed = errors.New("table: closed")

const createDDL = `CREATE TABLE IF NOT EXISTS packets (
	"index"          UBIGINT NOT NULL,
	"timestamp"      BIGINT NOT NULL,
	"uuid"           VARCHAR NOT NULL,
	"src_ip"         VARCHAR NOT NULL,
	"src_port"       UINTEGER NOT NULL,
	"dst_ip"         VARCHAR NOT NULL,
	"dst_port"       UINTEGER NOT NULL,
	"pid"            INTEGER NOT NULL,
	"pname"          VARCHAR NOT NULL,
	"type"           UINTEGER NOT NULL,
	"length"         UINTEGER NOT NULL,
	"is_binary"      BOOLEAN NOT NULL,
	"payload_utf8"   VARCHAR NOT NULL,
	"payload_binary" BLOB NOT NULL
)`

// Options configures Open.
type Options struct {
	// Path of the database file. Empty keeps the table in memory, which is
	// the only mode the pipeline uses.
	Path string
	// Threads caps DuckDB worker threads; zero keeps the engine default.
	Threads int
}

// Table is the append-only packets table backed by an embedded DuckDB
// database. Append must only be called from one goroutine at a time; the
// store actor is that goroutine. Snapshots may be taken and queried from
// anywhere.
type Table struct {
	connector *duckdb.Connector
	db        *sql.DB

	mu     sync.Mutex
	writer driver.Conn
	closed bool
}

// Open creates the database and the empty packets table.
func Open(ctx context.Context, opts Options) (*Table, error) {
	connector, err := duckdb.NewConnector(opts.Path, func(execer driver.ExecerContext) error {
		if opts.Threads > 0 {
			_, err := execer.ExecContext(ctx, fmt.Sprintf("SET threads = %d", opts.Threads), nil)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("table: open duckdb: %w", err)
	}
	db := sql.OpenDB(connector)
	if _, err := db.ExecContext(ctx, createDDL); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("table: create schema: %w", err)
	}
	writer, err := connector.Connect(ctx)
	if err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, fmt.Errorf("table: writer conn: %w", err)
	}
	return &Table{connector: connector, db: db, writer: writer}, nil
}

// Append writes recs in order. Work is proportional to len(recs); the
// existing rows are never scanned.
func (t *Table) Append(ctx context.Context, recs []packet.Record) error {
	if len(recs) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	app, err := duckdb.NewAppenderFromConn(t.writer, "", packet.TableName)
	if err != nil {
		return fmt.Errorf("table: appender: %w", err)
	}
	for i := range recs {
		r := &recs[i]
		payloadBin := r.PayloadBytes
		if payloadBin == nil {
			payloadBin = []byte{}
		}
		if err := app.AppendRow(
			r.Index, r.Timestamp, r.CorrelationID,
			r.SrcAddr, r.SrcPort, r.DstAddr, r.DstPort,
			r.ProcessID, r.ProcessName, r.Kind, r.Length,
			r.IsBinary, r.PayloadText, payloadBin,
		); err != nil {
			_ = app.Close()
			return fmt.Errorf("table: append row %d: %w", r.Index, err)
		}
	}
	if err := app.Close(); err != nil {
		return fmt.Errorf("table: flush batch: %w", err)
	}
	return nil
}

// Snapshot pins the current table contents for later queries. Rows appended
// after Snapshot returns are not visible through it.
func (t *Table) Snapshot(ctx context.Context) (*Snapshot, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("table: begin snapshot: %w", err)
	}
	// the first read fixes the transaction's view
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM packets`).Scan(&n); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("table: pin snapshot: %w", err)
	}
	return &Snapshot{tx: tx, rows: n}, nil
}

// Count returns the current number of rows.
func (t *Table) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.db.QueryRowContext(ctx, `SELECT count(*) FROM packets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("table: count: %w", err)
	}
	return n, nil
}

// Close releases the database. Outstanding snapshots must be closed first.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return errors.Join(t.writer.Close(), t.db.Close(), t.connector.Close())
}

// Snapshot is an immutable view of the table taken at one instant.
type Snapshot struct {
	tx   *sql.Tx
	rows int64
	once sync.Once
}

// Rows is the row count at the time the snapshot was taken.
func (s *Snapshot) Rows() int64 { return s.rows }

// Query runs q against the snapshot and materializes the result.
func (s *Snapshot) Query(ctx context.Context, q string) (*Frame, error) {
	rows, err := s.tx.QueryContext(ctx, q)
	if err != nil {
		return nil, &QueryError{SQL: q, Err: err}
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{SQL: q, Err: err}
	}
	f := &Frame{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{SQL: q, Err: err}
		}
		f.Rows = append(f.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: q, Err: err}
	}
	return f, nil
}

// Close ends the snapshot. It is safe to call more than once.
func (s *Snapshot) Close() error {
	var err error
	s.once.Do(func() { err = s.tx.Rollback() })
	return err
}

// QueryError is an engine-reported failure of one query, such as a malformed
// predicate or an unknown column.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v (sql: %s)", e.Err, compact(e.SQL))
}

func (e *QueryError) Unwrap() error { return e.Err }

func compact(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
