// Package store defines the aggregate persistence interface. The job
// package owns the job contract; Store adds lifecycle operations on top.
// Backends: Memory, SQLite, Postgres, Redis and MongoDB.
package store

import (
	"context"

	"github.com/xraph/queuectl/job"
)

// Store is the aggregate persistence interface implemented by every
// backend.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// Handle is a connection to the job table owned by a single worker.
type Handle interface {
	job.Store

	// Close releases the handle. It never closes the parent store.
	Close() error
}

// HandleOpener is implemented by backends that give each worker its own
// connection. Backends without it share their pooled client across
// workers.
type HandleOpener interface {
	OpenHandle(ctx context.Context) (Handle, error)
}

// Shared wraps s as a Handle whose Close is a no-op, for backends whose
// client is already a connection pool.
func Shared(s job.Store) Handle {
	return sharedHandle{s}
}

type sharedHandle struct {
	job.Store
}

func (sharedHandle) Close() error { return nil }

// OpenHandle returns a per-worker handle for s: its own connection when s
// implements HandleOpener, otherwise s itself behind a no-op Close.
func OpenHandle(ctx context.Context, s Store) (Handle, error) {
	if o, ok := s.(HandleOpener); ok {
		return o.OpenHandle(ctx)
	}
	return Shared(s), nil
}
