package job

import (
	"context"
	"time"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// State filters by job state. Empty means all states.
	State State
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Transition is the outcome of one execution, recorded against a job that
// is still in processing.
type Transition struct {
	To        State
	Attempts  int
	NextRunAt int64
	UpdatedAt time.Time
}

// Store defines the persistence contract for jobs. Every mutation is a
// single-row update conditioned on the job's current state, so several
// workers, each with its own handle, can share one table safely.
type Store interface {
	// EnqueueJob persists a new pending job. It returns
	// queuectl.ErrJobAlreadyExists, leaving the existing row untouched,
	// when the ID is taken.
	EnqueueJob(ctx context.Context, j *Job) error

	// NextCandidate returns the earliest-created job that is ready at now
	// and whose ID is not in exclude, or nil when there is none.
	NextCandidate(ctx context.Context, now time.Time, exclude []string) (*Job, error)

	// TryClaim moves the job from pending to processing only if it is
	// still pending and ready at now. It reports whether this call made
	// the transition.
	TryClaim(ctx context.Context, jobID string, now time.Time) (bool, error)

	// ApplyOutcome records t against a job that is in processing. It
	// returns queuectl.ErrInvalidState when no processing row matched.
	ApplyOutcome(ctx context.Context, jobID string, t Transition) error

	// RequeueDead moves a dead job back to pending with zero attempts and
	// NextRunAt 0. It returns queuectl.ErrJobNotFound or
	// queuectl.ErrNotRequeueable without changing anything otherwise.
	RequeueDead(ctx context.Context, jobID string, now time.Time) error

	// Heartbeat sets UpdatedAt to now on a job that is still in
	// processing, renewing the claim against ReapStuck. It reports whether
	// the job was still in processing.
	Heartbeat(ctx context.Context, jobID string, now time.Time) (bool, error)

	// ReapStuck returns jobs in processing whose UpdatedAt, set by the
	// claim or the latest Heartbeat, is before staleBefore to pending,
	// and reports their IDs.
	ReapStuck(ctx context.Context, staleBefore, now time.Time) ([]string, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListJobs returns jobs in FIFO order, optionally filtered by state.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountByState returns the number of jobs in every state, including
	// states with no jobs.
	CountByState(ctx context.Context) (map[State]int64, error)
}
