package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/job"
)

const jobColumns = `id, command, state, attempts, max_retries, next_run_at, created_at, updated_at`

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Command, string(j.State), j.Attempts, j.MaxRetries,
		j.NextRunAt, formatTime(j.CreatedAt), formatTime(j.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return queuectl.ErrJobAlreadyExists
		}
		return fmt.Errorf("queuectl/sqlite: enqueue job: %w", err)
	}
	return nil
}

// NextCandidate returns the earliest-created ready job not in exclude.
func (s *Store) NextCandidate(ctx context.Context, now time.Time, exclude []string) (*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE state = 'pending' AND next_run_at <= ?`
	args := make([]any, 0, len(exclude)+1)
	args = append(args, now.Unix())

	if len(exclude) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(exclude)-1) + `)`
		for _, jobID := range exclude {
			args = append(args, jobID)
		}
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT 1`

	j, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("queuectl/sqlite: next candidate: %w", err)
	}
	return j, nil
}

// TryClaim moves a ready pending job to processing.
func (s *Store) TryClaim(ctx context.Context, jobID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = 'processing', updated_at = ?
		WHERE id = ? AND state = 'pending' AND next_run_at <= ?`,
		formatTime(now), jobID, now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("queuectl/sqlite: claim job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("queuectl/sqlite: claim job: %w", err)
	}
	return rows == 1, nil
}

// Heartbeat renews the claim on a processing job.
func (s *Store) Heartbeat(ctx context.Context, jobID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET updated_at = ?
		WHERE id = ? AND state = 'processing'`,
		formatTime(now), jobID,
	)
	if err != nil {
		return false, fmt.Errorf("queuectl/sqlite: heartbeat: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("queuectl/sqlite: heartbeat: %w", err)
	}
	return rows == 1, nil
}

// ApplyOutcome records t against a processing job.
func (s *Store) ApplyOutcome(ctx context.Context, jobID string, t job.Transition) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, attempts = ?, next_run_at = ?, updated_at = ?
		WHERE id = ? AND state = 'processing'`,
		string(t.To), t.Attempts, t.NextRunAt, formatTime(t.UpdatedAt), jobID,
	)
	if err != nil {
		return fmt.Errorf("queuectl/sqlite: apply outcome: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return queuectl.ErrInvalidState
	}
	return nil
}

// RequeueDead moves a dead job back to pending.
func (s *Store) RequeueDead(ctx context.Context, jobID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = 'pending', attempts = 0, next_run_at = 0, updated_at = ?
		WHERE id = ? AND state = 'dead'`,
		formatTime(now), jobID,
	)
	if err != nil {
		return fmt.Errorf("queuectl/sqlite: requeue job: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 1 { //nolint:errcheck // driver always returns nil
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = ?)`, jobID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("queuectl/sqlite: requeue job: %w", err)
	}
	if !exists {
		return queuectl.ErrJobNotFound
	}
	return queuectl.ErrNotRequeueable
}

// ReapStuck returns long-running processing jobs to pending.
func (s *Store) ReapStuck(ctx context.Context, staleBefore, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE jobs
		SET state = 'pending', next_run_at = 0, updated_at = ?
		WHERE state = 'processing' AND updated_at < ?
		RETURNING id`,
		formatTime(now), formatTime(staleBefore),
	)
	if err != nil {
		return nil, fmt.Errorf("queuectl/sqlite: reap stuck jobs: %w", err)
	}
	defer rows.Close()

	var reaped []string
	for rows.Next() {
		var jobID string
		if err := rows.Scan(&jobID); err != nil {
			return nil, fmt.Errorf("queuectl/sqlite: reap stuck jobs: %w", err)
		}
		reaped = append(reaped, jobID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queuectl/sqlite: reap stuck jobs: %w", err)
	}
	sort.Strings(reaped)
	return reaped, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, queuectl.ErrJobNotFound
		}
		return nil, fmt.Errorf("queuectl/sqlite: get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs in FIFO order, optionally filtered by state.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any

	if opts.State != "" {
		query += ` WHERE state = ?`
		args = append(args, string(opts.State))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	// SQLite only accepts OFFSET after LIMIT; -1 means no limit.
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queuectl/sqlite: list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("queuectl/sqlite: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queuectl/sqlite: iterate job rows: %w", err)
	}
	return jobs, nil
}

// CountByState returns the number of jobs in every state.
func (s *Store) CountByState(ctx context.Context) (map[job.State]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("queuectl/sqlite: count jobs: %w", err)
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
			return nil, fmt.Errorf("queuectl/sqlite: scan count: %w", err)
		}
		counts[job.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queuectl/sqlite: iterate counts: %w", err)
	}
	return counts, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Job, error) {
	var (
		j                    job.Job
		state                string
		createdAt, updatedAt string
	)
	err := row.Scan(&j.ID, &j.Command, &state, &j.Attempts, &j.MaxRetries,
		&j.NextRunAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	j.State = job.State(state)

	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}
