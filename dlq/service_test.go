package dlq_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/dlq"
	"github.com/xraph/queuectl/ext"
	"github.com/xraph/queuectl/job"
	"github.com/xraph/queuectl/store/memory"
)

// seedDead enqueues a job and drives it to dead through the store
// contract.
func seedDead(t *testing.T, s *memory.Store, jobID string, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	zero := 0
	j, err := job.NewJob(job.Request{ID: jobID, Command: "exit 1", MaxRetries: &zero}, createdAt)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if ok, err := s.TryClaim(ctx, jobID, createdAt); err != nil || !ok {
		t.Fatalf("TryClaim = %v, %v", ok, err)
	}
	if err := s.ApplyOutcome(ctx, jobID, job.Transition{To: job.StateDead, Attempts: 1, UpdatedAt: createdAt}); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
}

type requeueTracker struct{ ids []string }

func (r *requeueTracker) Name() string { return "requeue-tracker" }

func (r *requeueTracker) OnJobRequeued(_ context.Context, jobID string) error {
	r.ids = append(r.ids, jobID)
	return nil
}

func TestService_ListAndCount(t *testing.T) {
	t.Parallel()
	s := memory.New()
	base := time.Now().Add(-time.Minute)
	seedDead(t, s, "b", base.Add(2*time.Second))
	seedDead(t, s, "a", base.Add(time.Second))

	zero := 0
	pending, _ := job.NewJob(job.Request{ID: "p", Command: "true", MaxRetries: &zero}, base)
	if err := s.EnqueueJob(context.Background(), pending); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	svc := dlq.NewService(s, nil, nil)
	ctx := context.Background()

	dead, err := svc.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(dead) != 2 || dead[0].ID != "a" || dead[1].ID != "b" {
		t.Fatalf("List = %v, want [a b]", ids(dead))
	}

	page, err := svc.List(ctx, 1, 1)
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "b" {
		t.Fatalf("List(1,1) = %v, want [b]", ids(page))
	}

	n, err := svc.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v; want 2", n, err)
	}
}

func TestService_Requeue(t *testing.T) {
	t.Parallel()
	s := memory.New()
	seedDead(t, s, "dead", time.Now().Add(-time.Minute))

	tracker := &requeueTracker{}
	extensions := ext.NewRegistry(slog.Default())
	extensions.Register(tracker)
	svc := dlq.NewService(s, extensions, slog.Default())
	ctx := context.Background()

	if err := svc.Requeue(ctx, "dead"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	got, err := s.GetJob(ctx, "dead")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StatePending || got.Attempts != 0 || got.NextRunAt != 0 {
		t.Fatalf("after requeue: state=%s attempts=%d next_run_at=%d", got.State, got.Attempts, got.NextRunAt)
	}
	if len(tracker.ids) != 1 || tracker.ids[0] != "dead" {
		t.Fatalf("requeued events = %v", tracker.ids)
	}

	claimed, err := job.ClaimNext(ctx, s, time.Now())
	if err != nil || claimed == nil || claimed.ID != "dead" {
		t.Fatalf("requeued job not claimable: %v, %v", claimed, err)
	}
}

func TestService_RequeueMisuse(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()
	zero := 0
	j, _ := job.NewJob(job.Request{ID: "pending", Command: "true", MaxRetries: &zero}, time.Now())
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	tracker := &requeueTracker{}
	extensions := ext.NewRegistry(slog.Default())
	extensions.Register(tracker)
	svc := dlq.NewService(s, extensions, nil)

	tests := []struct {
		name string
		id   string
		want error
	}{
		{"unknown id", "missing", queuectl.ErrJobNotFound},
		{"not dead", "pending", queuectl.ErrNotRequeueable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.Requeue(ctx, tt.id); !errors.Is(err, tt.want) {
				t.Fatalf("Requeue(%s) = %v, want %v", tt.id, err, tt.want)
			}
		})
	}

	got, _ := s.GetJob(ctx, "pending")
	if got.State != job.StatePending || !got.UpdatedAt.Equal(j.UpdatedAt) {
		t.Fatalf("misuse mutated the job: %+v", got)
	}
	if len(tracker.ids) != 0 {
		t.Fatalf("requeued events = %v, want none", tracker.ids)
	}
}

func TestService_RequeueAll(t *testing.T) {
	t.Parallel()
	s := memory.New()
	base := time.Now().Add(-time.Minute)
	for i, id := range []string{"a", "b", "c"} {
		seedDead(t, s, id, base.Add(time.Duration(i)*time.Second))
	}
	svc := dlq.NewService(s, nil, nil)
	ctx := context.Background()

	n, err := svc.RequeueAll(ctx)
	if err != nil || n != 3 {
		t.Fatalf("RequeueAll = %d, %v; want 3", n, err)
	}
	if left, _ := svc.Count(ctx); left != 0 {
		t.Fatalf("dead after RequeueAll = %d", left)
	}

	n, err = svc.RequeueAll(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second RequeueAll = %d, %v; want 0", n, err)
	}
}

func ids(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
