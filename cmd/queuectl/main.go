// Command queuectl enqueues shell commands into a persistent job table and
// runs them with a pool of workers, retrying failures with exponential
// backoff and parking exhausted jobs in a dead letter queue.
//
// Subcommands:
//
//	enqueue   add a job from a JSON payload or flags
//	worker    run workers until SIGINT or SIGTERM
//	status    job counts by state
//	list      list jobs, optionally by state
//	dlq       list or retry dead jobs
//	config    get, set and list settings
//	serve     run the HTTP API and the worker pool together
//	migrate   apply storage migrations and exit
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	audithook "github.com/xraph/queuectl/audit_hook"
	"github.com/xraph/queuectl/engine"
	"github.com/xraph/queuectl/executor"
	"github.com/xraph/queuectl/internal/config"
	"github.com/xraph/queuectl/observability"
	"github.com/xraph/queuectl/store"
	"github.com/xraph/queuectl/store/memory"
	"github.com/xraph/queuectl/store/mongo"
	"github.com/xraph/queuectl/store/postgres"
	"github.com/xraph/queuectl/store/redis"
	"github.com/xraph/queuectl/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "queuectl",
		Short: "Background job queue for shell commands",
		// Silence default error printing; main logs it with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $QUEUECTL_CONFIG or the user config dir)")

	root.AddCommand(
		enqueueCmd(a),
		workerCmd(a),
		statusCmd(a),
		listCmd(a),
		dlqCmd(a),
		configCmd(a),
		serveCmd(a),
		migrateCmd(a),
	)
	return root
}

// load resolves the config path, reads the config and installs the logger.
func (a *app) load(cmd *cobra.Command) error {
	if a.configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		a.configPath = p
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg
	a.logger = newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)
	return nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore connects to the configured backend and applies migrations.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch a.cfg.Driver {
	case config.DriverSQLite:
		st, err = sqlite.New(ctx, a.cfg.DSN, sqlite.WithLogger(a.logger))
	case config.DriverPostgres:
		st, err = postgres.New(ctx, a.cfg.DSN, postgres.WithLogger(a.logger))
	case config.DriverRedis:
		st, err = redis.Open(a.cfg.DSN, redis.WithLogger(a.logger))
	case config.DriverMongo:
		st, err = mongo.Open(ctx, a.cfg.DSN, mongo.WithLogger(a.logger), mongo.WithDatabase(mongoDatabase(a.cfg.DSN)))
	case config.DriverMemory:
		st = memory.New()
	default:
		return nil, fmt.Errorf("unknown driver %q", a.cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Driver, err)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate %s store: %w", a.cfg.Driver, err)
	}
	return st, nil
}

// mongoDatabase returns the database named in a mongodb:// URI path, or
// "queuectl".
func mongoDatabase(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "queuectl"
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		return db
	}
	return "queuectl"
}

// openEngine opens the store and builds an engine over it. The returned
// close function releases the store.
func (a *app) openEngine(ctx context.Context, opts ...engine.Option) (*engine.Engine, func(), error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	base := []engine.Option{
		engine.WithConfig(a.cfg.Engine()),
		engine.WithLogger(a.logger),
		engine.WithExecutor(executor.NewShell(executor.WithLogger(a.logger))),
	}

	var audit *audithook.FileRecorder
	if a.cfg.AuditLog != "" {
		audit, err = audithook.OpenFile(a.cfg.AuditLog)
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		base = append(base, engine.WithExtension(audithook.New(audit, audithook.WithLogger(a.logger))))
	}

	closeFn := func() {
		if audit != nil {
			if err := audit.Close(); err != nil {
				a.logger.Warn("close audit log", slog.String("error", err.Error()))
			}
		}
		if err := st.Close(); err != nil {
			a.logger.Warn("close store", slog.String("error", err.Error()))
		}
	}

	eng, err := engine.New(st, append(base, opts...)...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return eng, closeFn, nil
}

// setupTracing installs the configured exporter. The returned function
// flushes pending spans.
func (a *app) setupTracing(ctx context.Context) (func(), error) {
	shutdown, err := observability.SetupTracing(ctx, a.cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			a.logger.Warn("tracing shutdown", slog.String("error", err.Error()))
		}
	}, nil
}
