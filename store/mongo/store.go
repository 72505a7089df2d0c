package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/xraph/queuectl/store"
)

const (
	defaultDatabase = "queuectl"
	colJobs         = "queuectl_jobs"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	db       *mongod.Database
	owned    *mongod.Client
	database string
	logger   *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDatabase selects the database used by Open. Defaults to "queuectl".
func WithDatabase(name string) Option {
	return func(s *Store) {
		s.database = name
	}
}

// New creates a store on db. The caller owns the client lifecycle; Close
// does not disconnect it.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:       db,
		database: db.Name(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to uri and returns a Store that owns the client; Close
// disconnects it.
func Open(ctx context.Context, uri string, opts ...Option) (*Store, error) {
	s := &Store{database: defaultDatabase, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("queuectl/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("queuectl/mongo: ping: %w", err)
	}

	s.owned = client
	s.db = client.Database(s.database)
	return s, nil
}

// DB returns the underlying database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

func (s *Store) jobs() *mongod.Collection {
	return s.db.Collection(colJobs)
}

// Migrate creates the job collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.jobs().Indexes().CreateMany(ctx, []mongod.IndexModel{
		// FIFO scan of ready jobs.
		{Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "_id", Value: 1},
		}},
		// Reaping stuck jobs.
		{Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "updated_at", Value: 1},
		}},
	})
	if err != nil {
		return fmt.Errorf("queuectl/mongo: migrate %s indexes: %w", colJobs, err)
	}
	s.logger.Debug("indexes ensured", slog.String("store", "mongo"), slog.String("collection", colJobs))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// Close disconnects the client when the Store opened it.
func (s *Store) Close() error {
	if s.owned == nil {
		return nil
	}
	return s.owned.Disconnect(context.Background())
}

// ── helpers ──────────────────────────────────────────────────────

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation
// (E11000).
func isDuplicateKey(err error) bool {
	return mongod.IsDuplicateKeyError(err)
}
