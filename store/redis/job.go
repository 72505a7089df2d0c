package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/job"
)

// timeLayout is fixed width so that string comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EnqueueJob stores the job as a Hash and indexes it by creation time.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	score := jobScore(j.CreatedAt)
	args := append([]any{j.ID, score}, jobToArgs(j, score)...)

	created, err := enqueueScript.Run(ctx, s.client,
		[]string{s.jobKey(j.ID), s.allKey(), s.stateKey(j.State)},
		args...,
	).Int()
	if err != nil {
		return fmt.Errorf("queuectl/redis: enqueue job: %w", err)
	}
	if created == 0 {
		return queuectl.ErrJobAlreadyExists
	}
	return nil
}

// NextCandidate returns the earliest-created ready job not in exclude.
func (s *Store) NextCandidate(ctx context.Context, now time.Time, exclude []string) (*job.Job, error) {
	args := make([]any, 0, len(exclude)+2)
	args = append(args, s.jobKeyPrefix(), now.Unix())
	for _, jobID := range exclude {
		args = append(args, jobID)
	}

	jobID, err := candidateScript.Run(ctx, s.client,
		[]string{s.stateKey(job.StatePending)}, args...,
	).Text()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("queuectl/redis: next candidate: %w", err)
	}

	j, err := s.GetJob(ctx, jobID)
	if errors.Is(err, queuectl.ErrJobNotFound) {
		return nil, nil
	}
	return j, err
}

// TryClaim moves a ready pending job to processing.
func (s *Store) TryClaim(ctx context.Context, jobID string, now time.Time) (bool, error) {
	won, err := claimScript.Run(ctx, s.client,
		[]string{s.jobKey(jobID), s.stateKey(job.StatePending), s.stateKey(job.StateProcessing)},
		jobID, now.Unix(), formatTime(now),
	).Int()
	if err != nil {
		return false, fmt.Errorf("queuectl/redis: claim job: %w", err)
	}
	return won == 1, nil
}

// Heartbeat renews the claim on a processing job.
func (s *Store) Heartbeat(ctx context.Context, jobID string, now time.Time) (bool, error) {
	held, err := heartbeatScript.Run(ctx, s.client,
		[]string{s.jobKey(jobID)}, formatTime(now),
	).Int()
	if err != nil {
		return false, fmt.Errorf("queuectl/redis: heartbeat: %w", err)
	}
	return held == 1, nil
}

// ApplyOutcome records t against a processing job.
func (s *Store) ApplyOutcome(ctx context.Context, jobID string, t job.Transition) error {
	applied, err := outcomeScript.Run(ctx, s.client,
		[]string{s.jobKey(jobID), s.stateKey(job.StateProcessing), s.stateKey(t.To)},
		jobID, string(t.To), t.Attempts, t.NextRunAt, formatTime(t.UpdatedAt),
	).Int()
	if err != nil {
		return fmt.Errorf("queuectl/redis: apply outcome: %w", err)
	}
	if applied == 0 {
		return queuectl.ErrInvalidState
	}
	return nil
}

// RequeueDead moves a dead job back to pending.
func (s *Store) RequeueDead(ctx context.Context, jobID string, now time.Time) error {
	res, err := requeueScript.Run(ctx, s.client,
		[]string{s.jobKey(jobID), s.stateKey(job.StateDead), s.stateKey(job.StatePending)},
		jobID, formatTime(now),
	).Int()
	if err != nil {
		return fmt.Errorf("queuectl/redis: requeue job: %w", err)
	}
	switch res {
	case -1:
		return queuectl.ErrJobNotFound
	case 0:
		return queuectl.ErrNotRequeueable
	}
	return nil
}

// ReapStuck returns long-running processing jobs to pending.
func (s *Store) ReapStuck(ctx context.Context, staleBefore, now time.Time) ([]string, error) {
	reaped, err := reapScript.Run(ctx, s.client,
		[]string{s.stateKey(job.StateProcessing), s.stateKey(job.StatePending)},
		s.jobKeyPrefix(), formatTime(staleBefore), formatTime(now),
	).StringSlice()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("queuectl/redis: reap stuck jobs: %w", err)
	}
	sort.Strings(reaped)
	return reaped, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, s.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("queuectl/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, queuectl.ErrJobNotFound
	}
	return mapToJob(vals)
}

// ListJobs returns jobs in FIFO order, optionally filtered by state.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	key := s.allKey()
	if opts.State != "" {
		key = s.stateKey(opts.State)
	}

	start := int64(opts.Offset)
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}

	ids, err := s.client.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("queuectl/redis: list jobs: %w", err)
	}
	if len(ids) == 0 {
		return []*job.Job{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jobID := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.jobKey(jobID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queuectl/redis: list jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		j, err := mapToJob(vals)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountByState returns the number of jobs in every state.
func (s *Store) CountByState(ctx context.Context) (map[job.State]int64, error) {
	pipe := s.client.Pipeline()
	cmds := make(map[job.State]*goredis.IntCmd, len(job.States))
	for _, st := range job.States {
		cmds[st] = pipe.ZCard(ctx, s.stateKey(st))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queuectl/redis: count jobs: %w", err)
	}

	counts := make(map[job.State]int64, len(job.States))
	for st, cmd := range cmds {
		counts[st] = cmd.Val()
	}
	return counts, nil
}

// ── helpers ──

// jobScore orders jobs by creation time at millisecond resolution; Redis
// orders equal scores by member, which is the ID tie-break.
func jobScore(createdAt time.Time) int64 {
	return createdAt.UnixMilli()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func jobToArgs(j *job.Job, score int64) []any {
	return []any{
		"id", j.ID,
		"command", j.Command,
		"state", string(j.State),
		"attempts", strconv.Itoa(j.Attempts),
		"max_retries", strconv.Itoa(j.MaxRetries),
		"next_run_at", strconv.FormatInt(j.NextRunAt, 10),
		"created_at", formatTime(j.CreatedAt),
		"updated_at", formatTime(j.UpdatedAt),
		"score", strconv.FormatInt(score, 10),
	}
}

func mapToJob(m map[string]string) (*job.Job, error) {
	var (
		j   = &job.Job{ID: m["id"], Command: m["command"], State: job.State(m["state"])}
		err error
	)
	if j.Attempts, err = strconv.Atoi(m["attempts"]); err != nil {
		return nil, fmt.Errorf("queuectl/redis: parse attempts for %s: %w", j.ID, err)
	}
	if j.MaxRetries, err = strconv.Atoi(m["max_retries"]); err != nil {
		return nil, fmt.Errorf("queuectl/redis: parse max_retries for %s: %w", j.ID, err)
	}
	if j.NextRunAt, err = strconv.ParseInt(m["next_run_at"], 10, 64); err != nil {
		return nil, fmt.Errorf("queuectl/redis: parse next_run_at for %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(timeLayout, m["created_at"]); err != nil {
		return nil, fmt.Errorf("queuectl/redis: parse created_at for %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(timeLayout, m["updated_at"]); err != nil {
		return nil, fmt.Errorf("queuectl/redis: parse updated_at for %s: %w", j.ID, err)
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return j, nil
}
