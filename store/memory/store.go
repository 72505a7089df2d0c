// Package memory implements store.Store in process memory. It is safe for
// concurrent access and intended for unit testing and development.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/job"
	"github.com/xraph/queuectl/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// The mutex stands in for the row-level atomicity a database gives each
// conditional update; callers still go through the claim protocol.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// New returns a new empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]*job.Job)}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new pending job.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.ID]; exists {
		return queuectl.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

// NextCandidate returns the earliest-created ready job not in exclude.
func (m *Store) NextCandidate(_ context.Context, now time.Time, exclude []string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *job.Job
	for _, j := range m.jobs {
		if !j.Ready(now) || slices.Contains(exclude, j.ID) {
			continue
		}
		if best == nil || j.Before(best) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// TryClaim moves a ready pending job to processing.
func (m *Store) TryClaim(_ context.Context, jobID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || !j.Ready(now) {
		return false, nil
	}
	j.State = job.StateProcessing
	j.UpdatedAt = now.UTC()
	return true, nil
}

// ApplyOutcome records t against a processing job.
func (m *Store) ApplyOutcome(_ context.Context, jobID string, t job.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.State != job.StateProcessing {
		return queuectl.ErrInvalidState
	}
	t.Apply(j)
	return nil
}

// RequeueDead moves a dead job back to pending.
func (m *Store) RequeueDead(_ context.Context, jobID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return queuectl.ErrJobNotFound
	}
	if j.State != job.StateDead {
		return queuectl.ErrNotRequeueable
	}
	j.State = job.StatePending
	j.Attempts = 0
	j.NextRunAt = 0
	j.UpdatedAt = now.UTC()
	return nil
}

// Heartbeat renews the claim on a processing job.
func (m *Store) Heartbeat(_ context.Context, jobID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.State != job.StateProcessing {
		return false, nil
	}
	j.UpdatedAt = now.UTC()
	return true, nil
}

// ReapStuck returns long-running processing jobs to pending.
func (m *Store) ReapStuck(_ context.Context, staleBefore, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []string
	for _, j := range m.jobs {
		if j.State != job.StateProcessing || !j.UpdatedAt.Before(staleBefore) {
			continue
		}
		j.State = job.StatePending
		j.NextRunAt = 0
		j.UpdatedAt = now.UTC()
		reaped = append(reaped, j.ID)
	}
	sort.Strings(reaped)
	return reaped, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, queuectl.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// ListJobs returns jobs in FIFO order, optionally filtered by state.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.State != "" && j.State != opts.State {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].Before(result[k])
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountByState returns the number of jobs in every state.
func (m *Store) CountByState(_ context.Context) (map[job.State]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[job.State]int64, len(job.States))
	for _, st := range job.States {
		counts[st] = 0
	}
	for _, j := range m.jobs {
		counts[j.State]++
	}
	return counts, nil
}
