package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/job"
)

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queuectl_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.ID, j.Command, string(j.State), j.Attempts, j.MaxRetries,
		j.NextRunAt, j.CreatedAt.UTC(), j.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return queuectl.ErrJobAlreadyExists
		}
		return fmt.Errorf("queuectl/postgres: enqueue job: %w", err)
	}
	return nil
}

// NextCandidate returns the earliest-created ready job not in exclude.
func (s *Store) NextCandidate(ctx context.Context, now time.Time, exclude []string) (*job.Job, error) {
	if exclude == nil {
		// A NULL array would make the ANY predicate NULL for every row.
		exclude = []string{}
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM queuectl_jobs
		WHERE state = 'pending'
		  AND next_run_at <= $1
		  AND NOT (id = ANY($2))
		ORDER BY created_at ASC, id ASC
		LIMIT 1`,
		now.Unix(), exclude,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("queuectl/postgres: next candidate: %w", err)
	}
	return j, nil
}

// TryClaim moves a ready pending job to processing.
func (s *Store) TryClaim(ctx context.Context, jobID string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queuectl_jobs
		SET state = 'processing', updated_at = $2
		WHERE id = $1
		  AND state = 'pending'
		  AND next_run_at <= $3`,
		jobID, now.UTC(), now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("queuectl/postgres: claim job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Heartbeat renews the claim on a processing job.
func (s *Store) Heartbeat(ctx context.Context, jobID string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queuectl_jobs SET updated_at = $2
		WHERE id = $1 AND state = 'processing'`,
		jobID, now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("queuectl/postgres: heartbeat: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyOutcome records t against a processing job.
func (s *Store) ApplyOutcome(ctx context.Context, jobID string, t job.Transition) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queuectl_jobs
		SET state = $2, attempts = $3, next_run_at = $4, updated_at = $5
		WHERE id = $1 AND state = 'processing'`,
		jobID, string(t.To), t.Attempts, t.NextRunAt, t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("queuectl/postgres: apply outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queuectl.ErrInvalidState
	}
	return nil
}

// RequeueDead moves a dead job back to pending.
func (s *Store) RequeueDead(ctx context.Context, jobID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queuectl_jobs
		SET state = 'pending', attempts = 0, next_run_at = 0, updated_at = $2
		WHERE id = $1 AND state = 'dead'`,
		jobID, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("queuectl/postgres: requeue job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM queuectl_jobs WHERE id = $1)`, jobID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("queuectl/postgres: requeue job: %w", err)
	}
	if !exists {
		return queuectl.ErrJobNotFound
	}
	return queuectl.ErrNotRequeueable
}

// ReapStuck returns long-running processing jobs to pending.
func (s *Store) ReapStuck(ctx context.Context, staleBefore, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE queuectl_jobs
		SET state = 'pending', next_run_at = 0, updated_at = $2
		WHERE state = 'processing' AND updated_at < $1
		RETURNING id`,
		staleBefore.UTC(), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("queuectl/postgres: reap stuck jobs: %w", err)
	}

	reaped, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("queuectl/postgres: reap stuck jobs: %w", err)
	}
	sort.Strings(reaped)
	return reaped, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM queuectl_jobs
		WHERE id = $1`,
		jobID,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, queuectl.ErrJobNotFound
		}
		return nil, fmt.Errorf("queuectl/postgres: get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs in FIFO order, optionally filtered by state.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM queuectl_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}

	query += " ORDER BY created_at ASC, id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queuectl/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountByState returns the number of jobs in every state.
func (s *Store) CountByState(ctx context.Context) (map[job.State]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) FROM queuectl_jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("queuectl/postgres: count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[job.State]int64, len(job.States))
	for _, st := range job.States {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("queuectl/postgres: scan count: %w", err)
		}
		counts[job.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queuectl/postgres: iterate counts: %w", err)
	}
	return counts, nil
}
