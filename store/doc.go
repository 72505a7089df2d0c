// Package store defines the aggregate persistence interface.
//
// The job package defines the job persistence contract ([job.Store]); the
// composite [Store] adds Migrate, Ping and Close:
//
//	type Store interface {
//	    job.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// Every mutation in the contract is a single-row conditional update, so
// backends coordinate concurrent workers through the table itself.
//
// # Available Backends
//
//   - store/memory: in-memory store for development and testing
//   - store/sqlite: SQLite via mattn/go-sqlite3, one connection per worker
//   - store/postgres: PostgreSQL via pgx/v5
//   - store/redis: Redis, with Lua scripts for conditional transitions
//   - store/mongo: MongoDB via mongo-driver/v2
//
// # Per-worker handles
//
// Backends that implement [HandleOpener] hand each worker an independent
// connection. Pooled backends are wrapped with [Shared].
//
// # Migrations
//
// Call Migrate once at startup to create or update the schema:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
