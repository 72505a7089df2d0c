package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/queuectl/ext"
	"github.com/xraph/queuectl/id"
	"github.com/xraph/queuectl/job"
)

// Worker claims and processes jobs one at a time against its own store
// handle until its context is cancelled.
type Worker struct {
	id             string
	store          job.Store
	processor      *Processor
	extensions     *ext.Registry
	pollInterval   time.Duration
	maxStoreErrors int
	heartbeat      time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerPollInterval sets how long an idle worker waits before
// looking for work again.
func WithWorkerPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollInterval = d }
}

// WithMaxStoreErrors sets how many consecutive store failures end the
// worker. Zero means never.
func WithMaxStoreErrors(n int) WorkerOption {
	return func(w *Worker) { w.maxStoreErrors = n }
}

// WithWorkerHeartbeat makes the worker renew its claim every d while a
// command runs. Zero disables heartbeats.
func WithWorkerHeartbeat(d time.Duration) WorkerOption {
	return func(w *Worker) { w.heartbeat = d }
}

// WithWorkerID overrides the generated worker ID.
func WithWorkerID(workerID string) WorkerOption {
	return func(w *Worker) { w.id = workerID }
}

// NewWorker creates a worker that claims from s and runs jobs through p.
func NewWorker(s job.Store, p *Processor, extensions *ext.Registry, logger *slog.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	w := &Worker{
		id:             id.NewWorkerID(),
		store:          s,
		processor:      p,
		extensions:     extensions,
		pollInterval:   time.Second,
		maxStoreErrors: 5,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.id }

// Run loops until ctx is cancelled, returning nil, or until the store
// fails maxStoreErrors times in a row, returning the last error. The stop
// signal is checked between jobs only.
func (w *Worker) Run(ctx context.Context) error {
	log := w.logger.With(slog.String("worker_id", w.id))
	log.Debug("worker started")
	defer log.Debug("worker stopped")

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		worked, err := w.step(ctx)
		if err != nil {
			failures++
			log.Error("store error",
				slog.Int("consecutive", failures),
				slog.String("error", err.Error()),
			)
			if w.maxStoreErrors > 0 && failures >= w.maxStoreErrors {
				return fmt.Errorf("worker %s: %d consecutive store errors: %w", w.id, failures, err)
			}
			w.sleep(ctx)
			continue
		}
		failures = 0

		if !worked {
			w.sleep(ctx)
		}
	}
}

// step claims at most one job and processes it. It reports whether a job
// was processed.
func (w *Worker) step(ctx context.Context) (bool, error) {
	// A claim that has started is allowed to finish so a stop request
	// cannot leave a row in processing with nobody running it.
	claimCtx := context.WithoutCancel(ctx)

	j, err := job.ClaimNext(claimCtx, w.store, w.now())
	if err != nil {
		return false, err
	}
	if j == nil {
		return false, nil
	}

	w.extensions.EmitJobClaimed(claimCtx, j, w.id)
	if err := w.processor.process(ctx, w.store, j, w.heartbeat); err != nil {
		return true, err
	}
	return true, nil
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
