package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/ext"
	"github.com/xraph/queuectl/store"
)

// Opener returns the store handle a single worker will own. It is called
// once per worker, plus once for the reaper when enabled.
type Opener func(ctx context.Context) (store.Handle, error)

// Pool manages a fixed set of workers sharing one stop signal.
type Pool struct {
	opener         Opener
	processor      *Processor
	extensions     *ext.Registry
	concurrency    int
	pollInterval   time.Duration
	maxStoreErrors int
	stuckThreshold time.Duration
	reapInterval   time.Duration
	heartbeat      time.Duration
	logger         *slog.Logger
	now            func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	reaper  sync.WaitGroup
	done    chan struct{}
	alive   atomic.Int32
	errs    []error
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of workers. Values below 1 mean 1.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long idle workers wait between claim attempts.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithPoolMaxStoreErrors sets the consecutive store failures after which a
// worker exits.
func WithPoolMaxStoreErrors(n int) PoolOption {
	return func(p *Pool) { p.maxStoreErrors = n }
}

// WithStuckJobThreshold enables the reaper: jobs in processing whose claim
// has not been renewed for longer than d are returned to pending. Workers
// renew the claim on a running job with a heartbeat, so d bounds how long
// a crashed worker's job stays stuck, not how long a command may run. A
// zero value disables reaping and heartbeats.
func WithStuckJobThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.stuckThreshold = d }
}

// WithReapInterval sets how often the reaper runs. It defaults to the
// stuck job threshold.
func WithReapInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.reapInterval = d }
}

// WithHeartbeatInterval sets how often a worker renews the claim on the
// job it is running. It defaults to a third of the stuck job threshold
// and has no effect while reaping is disabled.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeat = d }
}

// NewPool creates a worker pool. Each worker gets its own handle from
// opener and runs jobs through processor.
func NewPool(opener Opener, processor *Processor, extensions *ext.Registry, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	p := &Pool{
		opener:         opener,
		processor:      processor,
		extensions:     extensions,
		concurrency:    1,
		pollInterval:   time.Second,
		maxStoreErrors: 5,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.reapInterval <= 0 {
		p.reapInterval = p.stuckThreshold
	}
	switch {
	case p.stuckThreshold <= 0:
		p.heartbeat = 0
	case p.heartbeat <= 0:
		p.heartbeat = p.stuckThreshold / 3
	}
	return p
}

// Start opens one handle per worker and launches the workers. It returns
// immediately. Cancelling ctx has the same effect as Stop.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		select {
		case <-p.done:
			return queuectl.ErrPoolStopped
		default:
			return queuectl.ErrPoolRunning
		}
	}

	n := p.concurrency
	if p.stuckThreshold > 0 {
		n++
	}
	handles := make([]store.Handle, 0, n)
	for range n {
		h, err := p.opener(ctx)
		if err != nil {
			for _, opened := range handles {
				_ = opened.Close()
			}
			return fmt.Errorf("queuectl/worker: open handle: %w", err)
		}
		handles = append(handles, h)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Duration("poll_interval", p.pollInterval),
		slog.Duration("stuck_job_threshold", p.stuckThreshold),
	)

	for _, h := range handles[:p.concurrency] {
		w := NewWorker(h, p.processor, p.extensions, p.logger,
			WithWorkerPollInterval(p.pollInterval),
			WithMaxStoreErrors(p.maxStoreErrors),
			WithWorkerHeartbeat(p.heartbeat),
		)
		p.wg.Add(1)
		p.alive.Add(1)
		go p.runWorker(runCtx, w, h)
	}

	if p.stuckThreshold > 0 {
		p.reaper.Add(1)
		go p.reaperLoop(runCtx, handles[p.concurrency])
	}

	// The pool is done when its workers are; the reaper has nothing to
	// guard after that.
	go func() {
		p.wg.Wait()
		cancel()
		p.reaper.Wait()
		p.logger.Info("worker pool stopped")
		p.extensions.EmitShutdown(context.WithoutCancel(ctx))
		close(p.done)
	}()

	return nil
}

// Stop signals every worker to stop and blocks until they have all exited.
// Running commands are allowed to finish. If ctx ends first, Stop returns
// ctx.Err() and the workers keep draining in the background.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	done, cancel := p.done, p.cancel
	p.mu.Unlock()

	if done == nil {
		return nil
	}

	p.logger.Info("worker pool stopping", slog.Int("alive", p.Alive()))
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool stop timed out, workers still draining",
			slog.Int("alive", p.Alive()),
		)
		return ctx.Err()
	}
}

// Wait blocks until every worker has exited and returns the errors of
// workers that exited because of store failures.
func (p *Pool) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

// Alive returns the number of workers currently running.
func (p *Pool) Alive() int { return int(p.alive.Load()) }

func (p *Pool) runWorker(ctx context.Context, w *Worker, h store.Handle) {
	defer p.wg.Done()
	defer p.alive.Add(-1)
	defer func() {
		if err := h.Close(); err != nil {
			p.logger.Warn("close worker handle", slog.String("worker_id", w.ID()), slog.String("error", err.Error()))
		}
	}()

	if err := w.Run(ctx); err != nil {
		p.logger.Error("worker exited", slog.String("worker_id", w.ID()), slog.String("error", err.Error()))
		p.mu.Lock()
		p.errs = append(p.errs, err)
		p.mu.Unlock()
	}
}

// reaperLoop periodically returns stuck processing jobs to pending.
func (p *Pool) reaperLoop(ctx context.Context, h store.Handle) {
	defer p.reaper.Done()
	defer func() { _ = h.Close() }()

	ticker := time.NewTicker(p.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reapStuck(ctx, h)
		}
	}
}

func (p *Pool) reapStuck(ctx context.Context, h store.Handle) {
	now := p.now()
	reaped, err := h.ReapStuck(ctx, now.Add(-p.stuckThreshold), now)
	if err != nil {
		p.logger.Error("reap stuck jobs", slog.String("error", err.Error()))
		return
	}
	for _, jobID := range reaped {
		p.logger.Info("reaped stuck job", slog.String("job_id", jobID))
		p.extensions.EmitJobReaped(ctx, jobID)
	}
}
