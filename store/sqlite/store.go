package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 database/sql driver

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so that text comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	migrationsTable = "queuectl_schema_migrations"
	busyTimeout     = 5 * time.Second
)

// Ensure Store implements store.Store and store.HandleOpener at compile time.
var (
	_ store.Store        = (*Store)(nil)
	_ store.HandleOpener = (*Store)(nil)
)

// Store is a SQLite implementation of store.Store. Every Store, including
// one returned by OpenHandle, owns exactly one connection to the file.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New opens (creating if needed) the database file at path.
func New(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is empty", queuectl.ErrInvalidConfig)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("queuectl/sqlite: create directory: %w", err)
		}
	}

	s := &Store{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

// dsn enables WAL, a busy timeout and immediate write transactions.
func dsn(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		path, busyTimeout.Milliseconds())
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("queuectl/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queuectl/sqlite: open %s: %w", path, err)
	}
	return db, nil
}

// OpenHandle opens a separate connection to the same file for one worker.
func (s *Store) OpenHandle(ctx context.Context) (store.Handle, error) {
	db, err := openDB(ctx, s.path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: s.path, logger: s.logger}, nil
}

// Migrate applies the embedded migrations with golang-migrate on a
// short-lived connection of its own.
func (s *Store) Migrate(ctx context.Context) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: source: %v", queuectl.ErrMigrationFailed, err)
	}

	db, err := openDB(ctx, s.path)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("%w: driver: %v", queuectl.ErrMigrationFailed, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("%w: init: %v", queuectl.ErrMigrationFailed, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: up: %v", queuectl.ErrMigrationFailed, err)
	}

	version, _, _ := m.Version() //nolint:errcheck
	s.logger.Debug("migrations complete", slog.String("store", "sqlite"), slog.Uint64("version", uint64(version)))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes this Store's connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("queuectl/sqlite: parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}
