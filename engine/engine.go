package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/backoff"
	"github.com/xraph/queuectl/dlq"
	"github.com/xraph/queuectl/executor"
	"github.com/xraph/queuectl/ext"
	"github.com/xraph/queuectl/job"
	mw "github.com/xraph/queuectl/middleware"
	"github.com/xraph/queuectl/observability"
	"github.com/xraph/queuectl/store"
	"github.com/xraph/queuectl/worker"
)

const instrumentationName = "github.com/xraph/queuectl"

// Engine owns a store and the worker pool that drains it.
type Engine struct {
	store      store.Store
	config     queuectl.Config
	extensions *ext.Registry
	executor   executor.Executor
	bo         backoff.Strategy
	dlq        *dlq.Service
	pool       *worker.Pool
	mws        []mw.Middleware
	extOpts    []ext.Extension
	logger     *slog.Logger
	now        func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration. The default is
// queuectl.DefaultConfig().
func WithConfig(cfg queuectl.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithLogger sets the logger used by the engine and every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExecutor sets the command executor. The default runs commands with
// /bin/sh.
func WithExecutor(e executor.Executor) Option {
	return func(eng *Engine) { eng.executor = e }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.extOpts = append(eng.extOpts, e) }
}

// WithMiddleware adds middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff overrides the retry strategy built from the config.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithTracerProvider sets the OpenTelemetry tracer provider used by the
// tracing middleware. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets the OpenTelemetry meter provider used by the
// metrics middleware and the observability extension. The global provider
// is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New builds an Engine over st.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, queuectl.ErrNoStore
	}

	eng := &Engine{
		store:  st,
		config: queuectl.DefaultConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(eng)
	}
	if err := eng.config.Validate(); err != nil {
		return nil, err
	}

	if eng.logger == nil {
		eng.logger = slog.Default()
	}
	logger := eng.logger

	eng.extensions = ext.NewRegistry(logger)
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter(instrumentationName + "/observability")
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(meter))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}
	for _, e := range eng.extOpts {
		eng.extensions.Register(e)
	}

	if eng.executor == nil {
		eng.executor = executor.NewShell(executor.WithLogger(logger))
	}
	if eng.bo == nil {
		eng.bo = backoff.NewExponential(eng.config.BackoffBase, eng.config.BackoffUnit, eng.config.BackoffMax)
	}

	eng.dlq = dlq.NewService(st, eng.extensions, logger)

	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging.
	allMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	}
	allMws = append(allMws, eng.mws...)

	processor := worker.NewProcessor(eng.extensions, eng.executor, eng.bo, logger, allMws...)
	opener := func(ctx context.Context) (store.Handle, error) {
		return store.OpenHandle(ctx, st)
	}
	eng.pool = worker.NewPool(opener, processor, eng.extensions, logger,
		worker.WithPoolConcurrency(eng.config.Concurrency),
		worker.WithPollInterval(eng.config.PollInterval),
		worker.WithPoolMaxStoreErrors(eng.config.MaxStoreErrors),
		worker.WithStuckJobThreshold(eng.config.StuckJobThreshold),
	)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Enqueue
// ──────────────────────────────────────────────────

// Enqueue validates req and persists it as a pending job. It returns
// queuectl.ErrInvalidPayload for a bad request and
// queuectl.ErrJobAlreadyExists when the ID is taken; neither creates a row.
func (eng *Engine) Enqueue(ctx context.Context, req job.Request) (*job.Job, error) {
	j, err := job.NewJob(req, eng.now(), job.WithDefaultMaxRetries(eng.config.DefaultMaxRetries))
	if err != nil {
		return nil, err
	}

	if err := eng.store.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	eng.logger.Info("job enqueued",
		slog.String("job_id", j.ID),
		slog.String("command", j.Command),
		slog.Int("max_retries", j.MaxRetries),
	)
	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// EnqueueJSON parses a JSON enqueue payload and enqueues it.
func (eng *Engine) EnqueueJSON(ctx context.Context, data []byte) (*job.Job, error) {
	req, err := job.ParseRequest(data)
	if err != nil {
		return nil, err
	}
	return eng.Enqueue(ctx, req)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Stats is a point-in-time summary of the job table.
type Stats struct {
	Counts  map[job.State]int64 `json:"counts"`
	Total   int64               `json:"total"`
	Workers int                 `json:"workers"`
}

// Get returns a job by ID.
func (eng *Engine) Get(ctx context.Context, jobID string) (*job.Job, error) {
	return eng.store.GetJob(ctx, jobID)
}

// List returns jobs in FIFO order, optionally filtered by state.
func (eng *Engine) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	if opts.State != "" && !opts.State.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", queuectl.ErrInvalidPayload, opts.State)
	}
	return eng.store.ListJobs(ctx, opts)
}

// Stats returns job counts by state and the number of live workers in
// this process.
func (eng *Engine) Stats(ctx context.Context) (*Stats, error) {
	counts, err := eng.store.CountByState(ctx)
	if err != nil {
		return nil, err
	}
	s := &Stats{Counts: counts, Workers: eng.pool.Alive()}
	for _, n := range counts {
		s.Total += n
	}
	return s, nil
}

// DeadLetters returns dead jobs in FIFO order.
func (eng *Engine) DeadLetters(ctx context.Context, limit, offset int) ([]*job.Job, error) {
	return eng.dlq.List(ctx, limit, offset)
}

// ──────────────────────────────────────────────────
// Administration
// ──────────────────────────────────────────────────

// Requeue moves a dead job back to pending with zero attempts.
func (eng *Engine) Requeue(ctx context.Context, jobID string) error {
	return eng.dlq.Requeue(ctx, jobID)
}

// RequeueAllDead requeues every dead job and returns how many moved.
func (eng *Engine) RequeueAllDead(ctx context.Context) (int, error) {
	return eng.dlq.RequeueAll(ctx)
}

// Ping checks store connectivity.
func (eng *Engine) Ping(ctx context.Context) error {
	return eng.store.Ping(ctx)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the worker pool. It returns immediately.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.pool.Start(ctx)
}

// Stop signals the workers and waits for running commands to finish. When
// Config.ShutdownTimeout is set, Stop gives up waiting after it and
// returns context.DeadlineExceeded.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.config.ShutdownTimeout)
		defer cancel()
	}
	return eng.pool.Stop(ctx)
}

// Wait blocks until every worker has exited.
func (eng *Engine) Wait() error { return eng.pool.Wait() }

// Alive returns the number of running workers.
func (eng *Engine) Alive() int { return eng.pool.Alive() }

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// DLQ returns the dead-letter service.
func (eng *Engine) DLQ() *dlq.Service { return eng.dlq }

// Config returns the engine configuration.
func (eng *Engine) Config() queuectl.Config { return eng.config }
