// Package storetest is a conformance suite shared by every store backend.
// Backend tests call Run with a factory that returns an empty, migrated
// store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/backoff"
	"github.com/xraph/queuectl/job"
	"github.com/xraph/queuectl/store"
)

// Factory returns an empty, migrated store. Cleanup is registered on t.
type Factory func(t *testing.T) store.Store

// Run executes the full conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EnqueueAndGet", testEnqueueAndGet},
		{"DuplicateID", testDuplicateID},
		{"FIFO", testFIFO},
		{"FIFOTieBreak", testFIFOTieBreak},
		{"NotReadyUntilNextRunAt", testNotReady},
		{"ExcludeSkipsCandidate", testExclude},
		{"TryClaimOnce", testTryClaimOnce},
		{"ConcurrentClaims", testConcurrentClaims},
		{"ApplyOutcome", testApplyOutcome},
		{"ApplyOutcomeRequiresProcessing", testApplyOutcomeRequiresProcessing},
		{"RequeueDead", testRequeueDead},
		{"RequeueMisuse", testRequeueMisuse},
		{"ListJobs", testListJobs},
		{"CountByState", testCountByState},
		{"ReapStuck", testReapStuck},
		{"HeartbeatRenewsClaim", testHeartbeatRenewsClaim},
		{"RetryScenario", testRetryScenario},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// base is truncated so every backend round-trips it exactly.
func base() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newJob(jobID, command string, createdAt time.Time, maxRetries int) *job.Job {
	return &job.Job{
		ID:         jobID,
		Command:    command,
		State:      job.StatePending,
		MaxRetries: maxRetries,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func mustEnqueue(t *testing.T, s store.Store, j *job.Job) {
	t.Helper()
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("EnqueueJob(%s): %v", j.ID, err)
	}
}

func mustGet(t *testing.T, s store.Store, jobID string) *job.Job {
	t.Helper()
	j, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob(%s): %v", jobID, err)
	}
	return j
}

func mustClaim(t *testing.T, s store.Store, now time.Time) *job.Job {
	t.Helper()
	j, err := job.ClaimNext(context.Background(), s, now)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if j == nil {
		t.Fatal("ClaimNext: no job available")
	}
	return j
}

// kill drives a fresh job to dead through the public contract.
func kill(t *testing.T, s store.Store, jobID string, now time.Time) {
	t.Helper()
	ctx := context.Background()
	won, err := s.TryClaim(ctx, jobID, now)
	if err != nil || !won {
		t.Fatalf("TryClaim(%s) = %v, %v", jobID, won, err)
	}
	err = s.ApplyOutcome(ctx, jobID, job.Transition{To: job.StateDead, Attempts: 1, UpdatedAt: now})
	if err != nil {
		t.Fatalf("ApplyOutcome(%s): %v", jobID, err)
	}
}

func testEnqueueAndGet(t *testing.T, s store.Store) {
	now := base()
	mustEnqueue(t, s, newJob("a", "echo a", now, 3))

	got := mustGet(t, s, "a")
	if got.Command != "echo a" || got.State != job.StatePending || got.Attempts != 0 || got.MaxRetries != 3 {
		t.Fatalf("unexpected job: %+v", got)
	}
	if got.NextRunAt != 0 {
		t.Fatalf("NextRunAt = %d, want 0", got.NextRunAt)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}

	_, err := s.GetJob(context.Background(), "missing")
	if !errors.Is(err, queuectl.ErrJobNotFound) {
		t.Fatalf("GetJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

func testDuplicateID(t *testing.T, s store.Store) {
	now := base()
	mustEnqueue(t, s, newJob("dup", "echo first", now, 3))

	err := s.EnqueueJob(context.Background(), newJob("dup", "echo second", now.Add(time.Second), 7))
	if !errors.Is(err, queuectl.ErrJobAlreadyExists) {
		t.Fatalf("duplicate enqueue error = %v, want ErrJobAlreadyExists", err)
	}

	got := mustGet(t, s, "dup")
	if got.Command != "echo first" || got.MaxRetries != 3 {
		t.Fatalf("existing job was modified: %+v", got)
	}
}

func testFIFO(t *testing.T, s store.Store) {
	now := base()
	mustEnqueue(t, s, newJob("b", "echo b", now.Add(time.Second), 3))
	mustEnqueue(t, s, newJob("a", "echo a", now, 3))

	claimAt := now.Add(2 * time.Second)
	if got := mustClaim(t, s, claimAt); got.ID != "a" {
		t.Fatalf("first claim = %s, want a", got.ID)
	}
	if got := mustClaim(t, s, claimAt); got.ID != "b" {
		t.Fatalf("second claim = %s, want b", got.ID)
	}

	j, err := job.ClaimNext(context.Background(), s, claimAt)
	if err != nil || j != nil {
		t.Fatalf("third claim = %v, %v; want nil, nil", j, err)
	}
}

func testFIFOTieBreak(t *testing.T, s store.Store) {
	now := base()
	mustEnqueue(t, s, newJob("job-2", "echo 2", now, 3))
	mustEnqueue(t, s, newJob("job-1", "echo 1", now, 3))

	if got := mustClaim(t, s, now); got.ID != "job-1" {
		t.Fatalf("claim = %s, want job-1", got.ID)
	}
}

func testNotReady(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	mustEnqueue(t, s, newJob("later", "echo later", now, 3))

	claimed := mustClaim(t, s, now)
	tr := job.Transition{To: job.StatePending, Attempts: 1, NextRunAt: now.Unix() + 4, UpdatedAt: now}
	if err := s.ApplyOutcome(ctx, claimed.ID, tr); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}

	tests := []struct {
		name  string
		at    time.Time
		ready bool
	}{
		{"before", now.Add(3 * time.Second), false},
		{"at", time.Unix(now.Unix()+4, 0), true},
	}
	for _, tt := range tests {
		j, err := job.ClaimNext(ctx, s, tt.at)
		if err != nil {
			t.Fatalf("%s: ClaimNext: %v", tt.name, err)
		}
		if (j != nil) != tt.ready {
			t.Fatalf("%s: claimed=%v, want %v", tt.name, j != nil, tt.ready)
		}
	}
}

func testExclude(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	mustEnqueue(t, s, newJob("a", "echo a", now, 3))
	mustEnqueue(t, s, newJob("b", "echo b", now.Add(time.Second), 3))

	got, err := s.NextCandidate(ctx, now.Add(time.Minute), []string{"a"})
	if err != nil {
		t.Fatalf("NextCandidate: %v", err)
	}
	if got == nil || got.ID != "b" {
		t.Fatalf("NextCandidate = %+v, want b", got)
	}

	got, err = s.NextCandidate(ctx, now.Add(time.Minute), []string{"a", "b"})
	if err != nil || got != nil {
		t.Fatalf("NextCandidate(all excluded) = %+v, %v; want nil, nil", got, err)
	}

	// Candidate selection never mutates.
	if st := mustGet(t, s, "a").State; st != job.StatePending {
		t.Fatalf("state after NextCandidate = %s, want pending", st)
	}
}

func testTryClaimOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	mustEnqueue(t, s, newJob("once", "true", now, 3))

	first, err := s.TryClaim(ctx, "once", now)
	if err != nil || !first {
		t.Fatalf("first TryClaim = %v, %v; want true, nil", first, err)
	}
	second, err := s.TryClaim(ctx, "once", now)
	if err != nil || second {
		t.Fatalf("second TryClaim = %v, %v; want false, nil", second, err)
	}
	missing, err := s.TryClaim(ctx, "missing", now)
	if err != nil || missing {
		t.Fatalf("TryClaim(missing) = %v, %v; want false, nil", missing, err)
	}

	got := mustGet(t, s, "once")
	if got.State != job.StateProcessing || !got.UpdatedAt.Equal(now) {
		t.Fatalf("after claim: %+v", got)
	}
}

func testConcurrentClaims(t *testing.T, s store.Store) {
	const (
		jobs    = 40
		workers = 8
	)
	ctx := context.Background()
	now := base()
	for i := range jobs {
		mustEnqueue(t, s, newJob(fmt.Sprintf("job-%03d", i), "true", now.Add(time.Duration(i)*time.Millisecond), 3))
	}

	handles := make([]job.Store, workers)
	for i := range handles {
		handles[i] = s
		if opener, ok := s.(store.HandleOpener); ok {
			h, err := opener.OpenHandle(ctx)
			if err != nil {
				t.Fatalf("OpenHandle: %v", err)
			}
			t.Cleanup(func() { _ = h.Close() })
			handles[i] = h
		}
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
		errs    = make(chan error, workers)
	)
	claimAt := now.Add(time.Second)
	for _, h := range handles {
		wg.Add(1)
		go func(h job.Store) {
			defer wg.Done()
			for {
				j, err := job.ClaimNext(ctx, h, claimAt)
				if err != nil {
					errs <- err
					return
				}
				if j == nil {
					return
				}
				mu.Lock()
				claimed[j.ID]++
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("ClaimNext: %v", err)
	}
	if len(claimed) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
	for jobID, n := range claimed {
		if n != 1 {
			t.Errorf("job %s claimed %d times", jobID, n)
		}
	}
}

func testApplyOutcome(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	tests := []struct {
		name string
		tr   job.Transition
	}{
		{"completed", job.Transition{To: job.StateCompleted, Attempts: 0, UpdatedAt: now.Add(time.Second)}},
		{"retry", job.Transition{To: job.StatePending, Attempts: 1, NextRunAt: now.Unix() + 2, UpdatedAt: now.Add(time.Second)}},
		{"dead", job.Transition{To: job.StateDead, Attempts: 4, UpdatedAt: now.Add(time.Second)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mustEnqueue(t, s, newJob(tt.name, "cmd", now, 3))
			if won, err := s.TryClaim(ctx, tt.name, now); err != nil || !won {
				t.Fatalf("TryClaim = %v, %v", won, err)
			}
			if err := s.ApplyOutcome(ctx, tt.name, tt.tr); err != nil {
				t.Fatalf("ApplyOutcome: %v", err)
			}
			got := mustGet(t, s, tt.name)
			if got.State != tt.tr.To || got.Attempts != tt.tr.Attempts || got.NextRunAt != tt.tr.NextRunAt {
				t.Fatalf("got %+v, want %+v", got, tt.tr)
			}
			if !got.UpdatedAt.Equal(tt.tr.UpdatedAt) {
				t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, tt.tr.UpdatedAt)
			}
		})
	}
}

func testApplyOutcomeRequiresProcessing(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	mustEnqueue(t, s, newJob("idle", "cmd", now, 3))

	tr := job.Transition{To: job.StateCompleted, UpdatedAt: now}
	if err := s.ApplyOutcome(ctx, "idle", tr); !errors.Is(err, queuectl.ErrInvalidState) {
		t.Fatalf("ApplyOutcome(pending) error = %v, want ErrInvalidState", err)
	}
	if err := s.ApplyOutcome(ctx, "missing", tr); !errors.Is(err, queuectl.ErrInvalidState) {
		t.Fatalf("ApplyOutcome(missing) error = %v, want ErrInvalidState", err)
	}
	if st := mustGet(t, s, "idle").State; st != job.StatePending {
		t.Fatalf("state = %s, want pending", st)
	}
}

func testRequeueDead(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	mustEnqueue(t, s, newJob("dead", "false", now, 0))
	kill(t, s, "dead", now)

	later := now.Add(time.Minute)
	if err := s.RequeueDead(ctx, "dead", later); err != nil {
		t.Fatalf("RequeueDead: %v", err)
	}
	got := mustGet(t, s, "dead")
	if got.State != job.StatePending || got.Attempts != 0 || got.NextRunAt != 0 {
		t.Fatalf("after requeue: %+v", got)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}

	// The requeued job is claimable again.
	if j := mustClaim(t, s, later); j.ID != "dead" {
		t.Fatalf("claim after requeue = %s", j.ID)
	}
}

func testRequeueMisuse(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	mustEnqueue(t, s, newJob("pending", "true", now, 3))
	mustEnqueue(t, s, newJob("done", "true", now.Add(time.Millisecond), 3))
	if won, err := s.TryClaim(ctx, "done", now); err != nil || !won {
		t.Fatalf("TryClaim = %v, %v", won, err)
	}
	if err := s.ApplyOutcome(ctx, "done", job.Transition{To: job.StateCompleted, UpdatedAt: now}); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}

	before, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}

	tests := []struct {
		jobID string
		want  error
	}{
		{"pending", queuectl.ErrNotRequeueable},
		{"done", queuectl.ErrNotRequeueable},
		{"missing", queuectl.ErrJobNotFound},
	}
	for _, tt := range tests {
		if err := s.RequeueDead(ctx, tt.jobID, now.Add(time.Hour)); !errors.Is(err, tt.want) {
			t.Errorf("RequeueDead(%s) error = %v, want %v", tt.jobID, err, tt.want)
		}
	}

	after, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("job count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		b, a := before[i], after[i]
		if b.ID != a.ID || b.State != a.State || b.Attempts != a.Attempts || !b.UpdatedAt.Equal(a.UpdatedAt) {
			t.Errorf("job changed by failed requeue: %+v -> %+v", b, a)
		}
	}
}

func testListJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	for i := range 5 {
		mustEnqueue(t, s, newJob(fmt.Sprintf("j%d", i), "true", now.Add(time.Duration(i)*time.Second), 0))
	}
	kill(t, s, "j3", now)

	tests := []struct {
		name string
		opts job.ListOpts
		want []string
	}{
		{"all", job.ListOpts{}, []string{"j0", "j1", "j2", "j3", "j4"}},
		{"pending", job.ListOpts{State: job.StatePending}, []string{"j0", "j1", "j2", "j4"}},
		{"dead", job.ListOpts{State: job.StateDead}, []string{"j3"}},
		{"completed", job.ListOpts{State: job.StateCompleted}, nil},
		{"limit", job.ListOpts{Limit: 2}, []string{"j0", "j1"}},
		{"offset", job.ListOpts{Offset: 3}, []string{"j3", "j4"}},
		{"offset beyond", job.ListOpts{Offset: 10}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("got[%d] = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func testCountByState(t *testing.T, s store.Store) {
	ctx := context.Background()

	counts, err := s.CountByState(ctx)
	if err != nil {
		t.Fatalf("CountByState: %v", err)
	}
	for _, st := range job.States {
		if n, ok := counts[st]; !ok || n != 0 {
			t.Fatalf("empty store count[%s] = %d, %v", st, n, ok)
		}
	}

	now := base()
	mustEnqueue(t, s, newJob("p", "true", now, 0))
	mustEnqueue(t, s, newJob("r", "true", now.Add(time.Second), 0))
	mustEnqueue(t, s, newJob("d", "true", now.Add(2*time.Second), 0))
	kill(t, s, "d", now)
	if won, err := s.TryClaim(ctx, "r", now); err != nil || !won {
		t.Fatalf("TryClaim = %v, %v", won, err)
	}

	counts, err = s.CountByState(ctx)
	if err != nil {
		t.Fatalf("CountByState: %v", err)
	}
	want := map[job.State]int64{
		job.StatePending:    1,
		job.StateProcessing: 1,
		job.StateCompleted:  0,
		job.StateDead:       1,
	}
	for st, n := range want {
		if counts[st] != n {
			t.Errorf("count[%s] = %d, want %d", st, counts[st], n)
		}
	}
}

func testReapStuck(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	mustEnqueue(t, s, newJob("stuck", "sleep 1000", now.Add(-2*time.Hour), 3))
	mustEnqueue(t, s, newJob("fresh", "sleep 1", now.Add(-2*time.Hour+time.Second), 3))
	mustEnqueue(t, s, newJob("idle", "true", now.Add(-2*time.Hour+2*time.Second), 3))

	if won, err := s.TryClaim(ctx, "stuck", now.Add(-time.Hour)); err != nil || !won {
		t.Fatalf("TryClaim(stuck) = %v, %v", won, err)
	}
	if won, err := s.TryClaim(ctx, "fresh", now.Add(-time.Minute)); err != nil || !won {
		t.Fatalf("TryClaim(fresh) = %v, %v", won, err)
	}

	reaped, err := s.ReapStuck(ctx, now.Add(-30*time.Minute), now)
	if err != nil {
		t.Fatalf("ReapStuck: %v", err)
	}
	if len(reaped) != 1 || reaped[0] != "stuck" {
		t.Fatalf("reaped = %v, want [stuck]", reaped)
	}

	if got := mustGet(t, s, "stuck"); got.State != job.StatePending || got.Attempts != 0 {
		t.Fatalf("stuck after reap: %+v", got)
	}
	if st := mustGet(t, s, "fresh").State; st != job.StateProcessing {
		t.Fatalf("fresh state = %s, want processing", st)
	}
	if st := mustGet(t, s, "idle").State; st != job.StatePending {
		t.Fatalf("idle state = %s, want pending", st)
	}
}

// testHeartbeatRenewsClaim checks that a job claimed long ago but
// heartbeated recently survives the reaper, and that heartbeats only
// touch processing rows.
func testHeartbeatRenewsClaim(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	mustEnqueue(t, s, newJob("long", "sleep 7200", now.Add(-2*time.Hour), 3))
	mustEnqueue(t, s, newJob("waiting", "true", now.Add(-2*time.Hour+time.Second), 3))

	if won, err := s.TryClaim(ctx, "long", now.Add(-time.Hour)); err != nil || !won {
		t.Fatalf("TryClaim(long) = %v, %v", won, err)
	}

	held, err := s.Heartbeat(ctx, "long", now.Add(-time.Minute))
	if err != nil || !held {
		t.Fatalf("Heartbeat(long) = %v, %v; want true", held, err)
	}
	if got := mustGet(t, s, "long").UpdatedAt; !got.Equal(now.Add(-time.Minute)) {
		t.Fatalf("UpdatedAt after heartbeat = %v, want %v", got, now.Add(-time.Minute))
	}

	reaped, err := s.ReapStuck(ctx, now.Add(-30*time.Minute), now)
	if err != nil {
		t.Fatalf("ReapStuck: %v", err)
	}
	if len(reaped) != 0 {
		t.Fatalf("reaped = %v, want none after heartbeat", reaped)
	}
	if st := mustGet(t, s, "long").State; st != job.StateProcessing {
		t.Fatalf("long state = %s, want processing", st)
	}

	tests := []struct {
		name  string
		jobID string
	}{
		{"pending", "waiting"},
		{"missing", "nope"},
	}
	for _, tt := range tests {
		held, err := s.Heartbeat(ctx, tt.jobID, now)
		if err != nil || held {
			t.Fatalf("Heartbeat(%s) on %s row = %v, %v; want false", tt.jobID, tt.name, held, err)
		}
	}
	if got := mustGet(t, s, "waiting"); got.State != job.StatePending || !got.UpdatedAt.Equal(now.Add(-2*time.Hour+time.Second)) {
		t.Fatalf("pending row changed by heartbeat: %+v", got)
	}
}

// testRetryScenario walks a job with max_retries 2 whose command always
// fails through pending → dead, then requeues it.
func testRetryScenario(t *testing.T, s store.Store) {
	ctx := context.Background()
	strategy := backoff.DefaultStrategy()
	now := base()
	mustEnqueue(t, s, newJob("scenario", "exit 1", now, 2))

	wantDelay := []int64{2, 4}
	for attempt := 1; attempt <= 3; attempt++ {
		claimed := mustClaim(t, s, now)
		if claimed.State != job.StateProcessing {
			t.Fatalf("attempt %d: claimed state = %s", attempt, claimed.State)
		}

		tr := job.Decide(claimed, 1, now, strategy)
		if err := s.ApplyOutcome(ctx, claimed.ID, tr); err != nil {
			t.Fatalf("attempt %d: ApplyOutcome: %v", attempt, err)
		}

		got := mustGet(t, s, "scenario")
		if got.Attempts != attempt {
			t.Fatalf("attempt %d: attempts = %d", attempt, got.Attempts)
		}
		if attempt <= 2 {
			if got.State != job.StatePending {
				t.Fatalf("attempt %d: state = %s, want pending", attempt, got.State)
			}
			if delta := got.NextRunAt - got.UpdatedAt.Unix(); delta != wantDelay[attempt-1] {
				t.Fatalf("attempt %d: delay = %ds, want %ds", attempt, delta, wantDelay[attempt-1])
			}
			if j, err := job.ClaimNext(ctx, s, now); err != nil || j != nil {
				t.Fatalf("attempt %d: claimed before backoff elapsed: %v, %v", attempt, j, err)
			}
			now = time.Unix(got.NextRunAt, 0).UTC()
			continue
		}
		if got.State != job.StateDead {
			t.Fatalf("final state = %s, want dead", got.State)
		}
	}

	if err := s.RequeueDead(ctx, "scenario", now); err != nil {
		t.Fatalf("RequeueDead: %v", err)
	}
	got := mustGet(t, s, "scenario")
	if got.State != job.StatePending || got.Attempts != 0 || got.NextRunAt != 0 {
		t.Fatalf("after requeue: %+v", got)
	}
}
