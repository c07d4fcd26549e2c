// Package table holds captured packets in an embedded DuckDB database.
//
// The packets table is append-only: rows are added in batches through the
// DuckDB appender and never updated or deleted. Readers work on snapshots,
// which are MVCC transactions pinned at creation, so a long query never
// blocks appends and never sees rows appended after its snapshot.
//
// Example:
//
//	tbl, err := table.Open(ctx, table.Options{})
//	if err != nil {
//	    return err
//	}
//	defer tbl.Close()
//	_ = tbl.Append(ctx, recs)
//	snap, _ := tbl.Snapshot(ctx)
//	defer snap.Close()
//	frame, err := snap.Query(ctx, `SELECT "index", pname FROM packets`)
package table
