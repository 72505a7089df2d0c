package mongo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/job"
)

type jobModel struct {
	ID         string    `bson:"_id"`
	Command    string    `bson:"command"`
	State      string    `bson:"state"`
	Attempts   int       `bson:"attempts"`
	MaxRetries int       `bson:"max_retries"`
	NextRunAt  int64     `bson:"next_run_at"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:         j.ID,
		Command:    j.Command,
		State:      string(j.State),
		Attempts:   j.Attempts,
		MaxRetries: j.MaxRetries,
		NextRunAt:  j.NextRunAt,
		CreatedAt:  j.CreatedAt.UTC(),
		UpdatedAt:  j.UpdatedAt.UTC(),
	}
}

func fromJobModel(m *jobModel) *job.Job {
	return &job.Job{
		ID:         m.ID,
		Command:    m.Command,
		State:      job.State(m.State),
		Attempts:   m.Attempts,
		MaxRetries: m.MaxRetries,
		NextRunAt:  m.NextRunAt,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

var fifoSort = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.jobs().InsertOne(ctx, toJobModel(j))
	if err != nil {
		if isDuplicateKey(err) {
			return queuectl.ErrJobAlreadyExists
		}
		return fmt.Errorf("queuectl/mongo: enqueue job: %w", err)
	}
	return nil
}

// NextCandidate returns the earliest-created ready job not in exclude.
func (s *Store) NextCandidate(ctx context.Context, now time.Time, exclude []string) (*job.Job, error) {
	if exclude == nil {
		exclude = []string{}
	}
	filter := bson.M{
		"state":       string(job.StatePending),
		"next_run_at": bson.M{"$lte": now.Unix()},
		"_id":         bson.M{"$nin": exclude},
	}

	var m jobModel
	err := s.jobs().FindOne(ctx, filter, options.FindOne().SetSort(fifoSort)).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("queuectl/mongo: next candidate: %w", err)
	}
	return fromJobModel(&m), nil
}

// TryClaim moves a ready pending job to processing.
func (s *Store) TryClaim(ctx context.Context, jobID string, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":         jobID,
		"state":       string(job.StatePending),
		"next_run_at": bson.M{"$lte": now.Unix()},
	}
	update := bson.M{"$set": bson.M{
		"state":      string(job.StateProcessing),
		"updated_at": now.UTC(),
	}}

	res, err := s.jobs().UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("queuectl/mongo: claim job: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// Heartbeat renews the claim on a processing job. MatchedCount is used
// because a heartbeat within the same millisecond modifies nothing.
func (s *Store) Heartbeat(ctx context.Context, jobID string, now time.Time) (bool, error) {
	filter := bson.M{"_id": jobID, "state": string(job.StateProcessing)}
	update := bson.M{"$set": bson.M{"updated_at": now.UTC()}}

	res, err := s.jobs().UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("queuectl/mongo: heartbeat: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// ApplyOutcome records t against a processing job.
func (s *Store) ApplyOutcome(ctx context.Context, jobID string, t job.Transition) error {
	filter := bson.M{"_id": jobID, "state": string(job.StateProcessing)}
	update := bson.M{"$set": bson.M{
		"state":       string(t.To),
		"attempts":    t.Attempts,
		"next_run_at": t.NextRunAt,
		"updated_at":  t.UpdatedAt.UTC(),
	}}

	res, err := s.jobs().UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("queuectl/mongo: apply outcome: %w", err)
	}
	if res.MatchedCount == 0 {
		return queuectl.ErrInvalidState
	}
	return nil
}

// RequeueDead moves a dead job back to pending.
func (s *Store) RequeueDead(ctx context.Context, jobID string, now time.Time) error {
	filter := bson.M{"_id": jobID, "state": string(job.StateDead)}
	update := bson.M{"$set": bson.M{
		"state":       string(job.StatePending),
		"attempts":    0,
		"next_run_at": int64(0),
		"updated_at":  now.UTC(),
	}}

	res, err := s.jobs().UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("queuectl/mongo: requeue job: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.jobs().CountDocuments(ctx, bson.M{"_id": jobID})
	if err != nil {
		return fmt.Errorf("queuectl/mongo: requeue job: %w", err)
	}
	if n == 0 {
		return queuectl.ErrJobNotFound
	}
	return queuectl.ErrNotRequeueable
}

// ReapStuck returns long-running processing jobs to pending. Each job is
// reset with its own conditional update, so a job that completes between
// the scan and the reset is left alone.
func (s *Store) ReapStuck(ctx context.Context, staleBefore, now time.Time) ([]string, error) {
	stale := bson.M{
		"state":      string(job.StateProcessing),
		"updated_at": bson.M{"$lt": staleBefore.UTC()},
	}

	cursor, err := s.jobs().Find(ctx, stale, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("queuectl/mongo: reap stuck jobs: %w", err)
	}
	var found []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("queuectl/mongo: reap stuck jobs: %w", err)
	}

	var reaped []string
	for _, f := range found {
		filter := bson.M{
			"_id":        f.ID,
			"state":      string(job.StateProcessing),
			"updated_at": bson.M{"$lt": staleBefore.UTC()},
		}
		update := bson.M{"$set": bson.M{
			"state":       string(job.StatePending),
			"next_run_at": int64(0),
			"updated_at":  now.UTC(),
		}}
		res, err := s.jobs().UpdateOne(ctx, filter, update)
		if err != nil {
			return reaped, fmt.Errorf("queuectl/mongo: reap job %s: %w", f.ID, err)
		}
		if res.ModifiedCount == 1 {
			reaped = append(reaped, f.ID)
		}
	}
	sort.Strings(reaped)
	return reaped, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	var m jobModel
	err := s.jobs().FindOne(ctx, bson.M{"_id": jobID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, queuectl.ErrJobNotFound
		}
		return nil, fmt.Errorf("queuectl/mongo: get job: %w", err)
	}
	return fromJobModel(&m), nil
}

// ListJobs returns jobs in FIFO order, optionally filtered by state.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	filter := bson.M{}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	findOpts := options.Find().SetSort(fifoSort)
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.jobs().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("queuectl/mongo: list jobs: %w", err)
	}

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("queuectl/mongo: decode jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		jobs = append(jobs, fromJobModel(&models[i]))
	}
	return jobs, nil
}

// CountByState returns the number of jobs in every state.
func (s *Store) CountByState(ctx context.Context) (map[job.State]int64, error) {
	pipeline := bson.A{
		bson.M{"$group": bson.M{"_id": "$state", "count": bson.M{"$sum": 1}}},
	}
	cursor, err := s.jobs().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("queuectl/mongo: count jobs: %w", err)
	}

	var groups []struct {
		State string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("queuectl/mongo: count jobs: %w", err)
	}

	counts := make(map[job.State]int64, len(job.States))
	for _, st := range job.States {
		counts[st] = 0
	}
	for _, g := range groups {
		counts[job.State(g.State)] = g.Count
	}
	return counts, nil
}
