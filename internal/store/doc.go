// Package store runs the actor that exclusively owns the packets table.
//
// Every append and every snapshot goes through one goroutine reading a
// bounded inbox, which gives a single writer with many readers and strictly
// increasing row indices without locking the table. Callers hold a Client
// handle; the handle sends a request and waits for its one-shot reply.
//
// Example:
//
//	actor, client := store.New(tbl, store.Options{Logger: logger})
//	go func() { _ = actor.Run(ctx) }()
//	idx, err := client.AppendBatch(ctx, batch)
//	rows, err := client.Incremental(ctx, cursor, "pname = 'curl'")
package store
