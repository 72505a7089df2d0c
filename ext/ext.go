package ext

import (
	"context"
	"time"

	"github.com/xraph/queuectl/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is persisted as pending.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobClaimed is called when a worker wins the claim on a job, before its
// command runs.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, j *job.Job, workerID string) error
}

// JobCompleted is called after a command exits with code 0.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a command fails and the job goes back to
// pending until nextRunAt.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobDead is called when a job exhausts its retries.
type JobDead interface {
	OnJobDead(ctx context.Context, j *job.Job, exitCode int) error
}

// JobRequeued is called after a dead job is moved back to pending.
type JobRequeued interface {
	OnJobRequeued(ctx context.Context, jobID string) error
}

// JobReaped is called after a stuck processing job is returned to pending.
type JobReaped interface {
	OnJobReaped(ctx context.Context, jobID string) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called once the worker pool has drained.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
