package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/ext"
	"github.com/xraph/queuectl/job"
)

// Service provides dead-letter operations over a job store.
type Service struct {
	store      job.Store
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a dead-letter service. extensions and logger may be
// nil.
func NewService(store job.Store, extensions *ext.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	return &Service{store: store, extensions: extensions, logger: logger, now: time.Now}
}

// List returns dead jobs in FIFO order.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*job.Job, error) {
	return s.store.ListJobs(ctx, job.ListOpts{State: job.StateDead, Limit: limit, Offset: offset})
}

// Count returns the number of dead jobs.
func (s *Service) Count(ctx context.Context) (int64, error) {
	counts, err := s.store.CountByState(ctx)
	if err != nil {
		return 0, err
	}
	return counts[job.StateDead], nil
}

// Requeue moves one dead job back to pending. It returns
// queuectl.ErrJobNotFound or queuectl.ErrNotRequeueable, changing
// nothing, when jobID is unknown or not dead.
func (s *Service) Requeue(ctx context.Context, jobID string) error {
	if err := s.store.RequeueDead(ctx, jobID, s.now()); err != nil {
		return err
	}
	s.logger.Info("dead job requeued", slog.String("job_id", jobID))
	s.extensions.EmitJobRequeued(ctx, jobID)
	return nil
}

// RequeueAll requeues every dead job and returns how many were moved.
// Jobs that stopped being dead concurrently are skipped.
func (s *Service) RequeueAll(ctx context.Context) (int, error) {
	dead, err := s.List(ctx, 0, 0)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, j := range dead {
		err := s.Requeue(ctx, j.ID)
		switch {
		case err == nil:
			requeued++
		case errors.Is(err, queuectl.ErrNotRequeueable), errors.Is(err, queuectl.ErrJobNotFound):
			continue
		default:
			return requeued, fmt.Errorf("requeue %s: %w", j.ID, err)
		}
	}
	return requeued, nil
}
