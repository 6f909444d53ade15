// Package pebblestore wraps Pebble with an fsync policy, snapshots, batches
// and a metrics hook. Both *DB and *Snapshot satisfy Reader, so read paths
// can run against live data or a frozen view.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data/store",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
package pebblestore
