// Package pebblestore wraps Pebble with an fsync policy, batches and a small
// metrics hook. With no data directory the database runs on Pebble's
// in-memory filesystem.
//
//	db, err := pebblestore.Open(pebblestore.Options{})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
package pebblestore
