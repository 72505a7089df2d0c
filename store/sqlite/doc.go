// Package sqlite implements store.Store on a single SQLite file using
// mattn/go-sqlite3. Suitable for a single host running several worker
// processes against the same file.
//
// Each worker gets its own connection through OpenHandle. Claims are
// single conditional UPDATE statements, serialized by SQLite's write lock;
// WAL mode and a busy timeout keep concurrent writers waiting instead of
// failing.
//
//	s, _ := sqlite.New(ctx, "/var/lib/queuectl/queue.db")
//	defer s.Close()
//	_ = s.Migrate(ctx)
package sqlite
