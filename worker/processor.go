package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/backoff"
	"github.com/xraph/queuectl/executor"
	"github.com/xraph/queuectl/ext"
	"github.com/xraph/queuectl/job"
	"github.com/xraph/queuectl/middleware"
)

// Processor runs a single claimed job through middleware and the command
// executor, then records the outcome and emits lifecycle events.
type Processor struct {
	extensions *ext.Registry
	executor   executor.Executor
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
	now        func() time.Time
}

// NewProcessor creates a Processor with the given dependencies.
func NewProcessor(
	extensions *ext.Registry,
	exec executor.Executor,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Processor {
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		extensions: extensions,
		executor:   exec,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		logger:     logger,
		now:        time.Now,
	}
}

// Process executes j, which the caller has already claimed, and applies
// the resulting transition through s. Execution and the outcome write run
// on a context detached from ctx's cancellation so a stop request never
// interrupts a running command or loses its result.
//
// A returned error is a store failure. A job whose row left processing
// while it ran (for example because it was reaped) is logged and skipped.
func (p *Processor) Process(ctx context.Context, s job.Store, j *job.Job) error {
	return p.process(ctx, s, j, 0)
}

// process is Process with a claim heartbeat every interval while the
// command runs. The heartbeat stops before the outcome is written.
func (p *Processor) process(ctx context.Context, s job.Store, j *job.Job, interval time.Duration) error {
	ctx = context.WithoutCancel(ctx)
	start := p.now()

	terminal := func(ctx context.Context) int {
		return p.executor.Execute(ctx, j.Command)
	}

	var code int
	if interval > 0 {
		beatCtx, stopBeat := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.heartbeat(beatCtx, s, j.ID, interval)
		}()
		code = p.mw(ctx, j, terminal)
		stopBeat()
		wg.Wait()
	} else {
		code = p.mw(ctx, j, terminal)
	}
	elapsed := p.now().Sub(start)

	t := job.Decide(j, code, p.now(), p.backoff)
	if err := s.ApplyOutcome(ctx, j.ID, t); err != nil {
		if errors.Is(err, queuectl.ErrInvalidState) {
			p.logger.Warn("job left processing before its outcome was recorded",
				slog.String("job_id", j.ID),
				slog.Int("exit_code", code),
			)
			return nil
		}
		p.logger.Error("failed to record job outcome",
			slog.String("job_id", j.ID),
			slog.String("state", string(t.To)),
			slog.String("error", err.Error()),
		)
		return err
	}
	t.Apply(j)

	switch t.To {
	case job.StateCompleted:
		p.extensions.EmitJobCompleted(ctx, j, elapsed)
	case job.StatePending:
		nextRunAt := time.Unix(t.NextRunAt, 0).UTC()
		p.extensions.EmitJobRetrying(ctx, j, t.Attempts, nextRunAt)
		p.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID),
			slog.Int("attempt", t.Attempts),
			slog.Int("max_retries", j.MaxRetries),
			slog.Time("next_run_at", nextRunAt),
		)
	case job.StateDead:
		p.extensions.EmitJobDead(ctx, j, code)
		p.logger.Warn("job moved to dead letter after exhausting retries",
			slog.String("job_id", j.ID),
			slog.Int("attempts", t.Attempts),
			slog.Int("exit_code", code),
		)
	}
	return nil
}

// heartbeat renews the claim on jobID until ctx ends or the job is no
// longer in processing.
func (p *Processor) heartbeat(ctx context.Context, s job.Store, jobID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		held, err := s.Heartbeat(ctx, jobID, p.now())
		switch {
		case err != nil:
			p.logger.Warn("job heartbeat failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		case !held:
			p.logger.Warn("job left processing while its command was running",
				slog.String("job_id", jobID),
			)
			return
		}
	}
}
