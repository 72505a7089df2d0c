package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/backoff"
	"github.com/xraph/queuectl/engine"
	"github.com/xraph/queuectl/executor"
	"github.com/xraph/queuectl/job"
	"github.com/xraph/queuectl/store/memory"
)

func testConfig() queuectl.Config {
	cfg := queuectl.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func newEngine(t *testing.T, exec executor.Executor, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	opts = append([]engine.Option{
		engine.WithConfig(testConfig()),
		engine.WithExecutor(exec),
		engine.WithLogger(slog.Default()),
	}, opts...)
	eng, err := engine.New(s, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng, s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func stopEngine(t *testing.T, eng *engine.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func mustGet(t *testing.T, eng *engine.Engine, jobID string) *job.Job {
	t.Helper()
	j, err := eng.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Get(%s): %v", jobID, err)
	}
	return j
}

func TestEngine_NewNoStore(t *testing.T) {
	t.Parallel()
	if _, err := engine.New(nil); !errors.Is(err, queuectl.ErrNoStore) {
		t.Fatalf("New(nil) = %v, want ErrNoStore", err)
	}
}

func TestEngine_NewInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := queuectl.DefaultConfig()
	cfg.Concurrency = 0
	if _, err := engine.New(memory.New(), engine.WithConfig(cfg)); !errors.Is(err, queuectl.ErrInvalidConfig) {
		t.Fatalf("New = %v, want ErrInvalidConfig", err)
	}
}

func TestEngine_EndToEnd(t *testing.T) {
	t.Parallel()
	exec := executor.NewScript().On("echo hello", 0)
	eng, _ := newEngine(t, exec)
	ctx := context.Background()

	j, err := eng.EnqueueJSON(ctx, []byte(`{"id":"job1","command":"echo hello"}`))
	if err != nil {
		t.Fatalf("EnqueueJSON: %v", err)
	}
	if j.State != job.StatePending || j.Attempts != 0 || j.MaxRetries != 3 || j.NextRunAt != 0 {
		t.Fatalf("enqueued job = %+v", j)
	}

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return mustGet(t, eng, "job1").State == job.StateCompleted })

	stats, err := eng.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 || stats.Counts[job.StateCompleted] != 1 || stats.Workers != 1 {
		t.Fatalf("Stats = %+v", stats)
	}

	stopEngine(t, eng)
	if eng.Alive() != 0 {
		t.Fatalf("Alive = %d after stop", eng.Alive())
	}
	if calls := exec.Calls(); len(calls) != 1 || calls[0] != "echo hello" {
		t.Fatalf("executor calls = %v", calls)
	}
}

func TestEngine_EnqueueValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ``},
		{"not json", `command=true`},
		{"missing command", `{"id":"x"}`},
		{"blank command", `{"command":"   "}`},
		{"negative retries", `{"command":"true","max_retries":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			eng, _ := newEngine(t, executor.NewScript())
			ctx := context.Background()

			if _, err := eng.EnqueueJSON(ctx, []byte(tt.payload)); !errors.Is(err, queuectl.ErrInvalidPayload) {
				t.Fatalf("EnqueueJSON = %v, want ErrInvalidPayload", err)
			}
			stats, err := eng.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Total != 0 {
				t.Fatalf("rejected payload created %d rows", stats.Total)
			}
		})
	}
}

func TestEngine_DuplicateIDIsConflict(t *testing.T) {
	t.Parallel()
	eng, _ := newEngine(t, executor.NewScript())
	ctx := context.Background()

	if _, err := eng.Enqueue(ctx, job.Request{ID: "dup", Command: "first"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := eng.Enqueue(ctx, job.Request{ID: "dup", Command: "second"}); !errors.Is(err, queuectl.ErrJobAlreadyExists) {
		t.Fatalf("duplicate Enqueue = %v, want ErrJobAlreadyExists", err)
	}
	if got := mustGet(t, eng, "dup"); got.Command != "first" {
		t.Fatalf("duplicate overwrote command: %q", got.Command)
	}
}

func TestEngine_DefaultMaxRetriesFromConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.DefaultMaxRetries = 7
	eng, _ := newEngine(t, executor.NewScript(), engine.WithConfig(cfg))

	j, err := eng.Enqueue(context.Background(), job.Request{Command: "true"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.MaxRetries != 7 {
		t.Fatalf("MaxRetries = %d, want 7", j.MaxRetries)
	}
	if j.ID == "" {
		t.Fatal("expected generated ID")
	}
}

// The documented scenario: exit 1 with max_retries 2 fails three times,
// backing off 2s then 4s, ends dead with attempts 3 and can be requeued.
func TestEngine_RetryScenario(t *testing.T) {
	t.Parallel()
	exec := executor.NewScript().On("exit 1", 1)
	eng, s := newEngine(t, exec)
	ctx := context.Background()

	two := 2
	if _, err := eng.Enqueue(ctx, job.Request{ID: "scenario", Command: "exit 1", MaxRetries: &two}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// First attempt through the real pool and default exponential backoff.
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return mustGet(t, eng, "scenario").Attempts == 1 })
	stopEngine(t, eng)

	j := mustGet(t, eng, "scenario")
	if j.State != job.StatePending {
		t.Fatalf("after first failure state = %s, want pending", j.State)
	}
	if delta := j.NextRunAt - j.UpdatedAt.Unix(); delta != 2 {
		t.Fatalf("first delay = %ds, want 2s", delta)
	}

	// Drive the remaining attempts on a synthetic clock.
	strategy := backoff.DefaultStrategy()
	wantDelays := []int64{4}
	for attempt := 2; attempt <= 3; attempt++ {
		readyAt := time.Unix(j.NextRunAt, 0)
		if early, err := job.ClaimNext(ctx, s, readyAt.Add(-time.Second)); err != nil || early != nil {
			t.Fatalf("attempt %d claimable before next_run_at: %v, %v", attempt, early, err)
		}

		claimed, err := job.ClaimNext(ctx, s, readyAt)
		if err != nil || claimed == nil {
			t.Fatalf("attempt %d: ClaimNext = %v, %v", attempt, claimed, err)
		}
		if err := s.ApplyOutcome(ctx, claimed.ID, job.Decide(claimed, 1, readyAt, strategy)); err != nil {
			t.Fatalf("attempt %d: ApplyOutcome: %v", attempt, err)
		}
		j = mustGet(t, eng, "scenario")
		if j.Attempts != attempt {
			t.Fatalf("attempts = %d, want %d", j.Attempts, attempt)
		}
		if attempt <= two {
			if delta := j.NextRunAt - j.UpdatedAt.Unix(); delta != wantDelays[attempt-2] {
				t.Fatalf("delay after attempt %d = %ds, want %ds", attempt, delta, wantDelays[attempt-2])
			}
		}
	}

	if j.State != job.StateDead || j.Attempts != 3 {
		t.Fatalf("final = %s/%d, want dead/3", j.State, j.Attempts)
	}

	dead, err := eng.DeadLetters(ctx, 0, 0)
	if err != nil || len(dead) != 1 || dead[0].ID != "scenario" {
		t.Fatalf("DeadLetters = %v, %v", dead, err)
	}

	if err := eng.Requeue(ctx, "scenario"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	j = mustGet(t, eng, "scenario")
	if j.State != job.StatePending || j.Attempts != 0 || j.NextRunAt != 0 {
		t.Fatalf("after requeue = %s/%d/%d, want pending/0/0", j.State, j.Attempts, j.NextRunAt)
	}
}

func TestEngine_RequeueMisuse(t *testing.T) {
	t.Parallel()
	eng, _ := newEngine(t, executor.NewScript())
	ctx := context.Background()

	if _, err := eng.Enqueue(ctx, job.Request{ID: "live", Command: "true"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := eng.Requeue(ctx, "nope"); !errors.Is(err, queuectl.ErrJobNotFound) {
		t.Fatalf("Requeue(nope) = %v, want ErrJobNotFound", err)
	}
	if err := eng.Requeue(ctx, "live"); !errors.Is(err, queuectl.ErrNotRequeueable) {
		t.Fatalf("Requeue(live) = %v, want ErrNotRequeueable", err)
	}
}

func TestEngine_RequeueAllDead(t *testing.T) {
	t.Parallel()
	exec := executor.NewScript().On("fail", 1)
	eng, _ := newEngine(t, exec, engine.WithBackoff(backoff.NewConstant(0)))
	ctx := context.Background()

	zero := 0
	for _, id := range []string{"a", "b"} {
		if _, err := eng.Enqueue(ctx, job.Request{ID: id, Command: "fail", MaxRetries: &zero}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		dead, _ := eng.DeadLetters(ctx, 0, 0)
		return len(dead) == 2
	})
	stopEngine(t, eng)

	n, err := eng.RequeueAllDead(ctx)
	if err != nil || n != 2 {
		t.Fatalf("RequeueAllDead = %d, %v; want 2", n, err)
	}
	pending, err := eng.List(ctx, job.ListOpts{State: job.StatePending})
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending after requeue = %d, %v", len(pending), err)
	}
}

func TestEngine_ListRejectsUnknownState(t *testing.T) {
	t.Parallel()
	eng, _ := newEngine(t, executor.NewScript())
	if _, err := eng.List(context.Background(), job.ListOpts{State: "failed"}); !errors.Is(err, queuectl.ErrInvalidPayload) {
		t.Fatalf("List = %v, want ErrInvalidPayload", err)
	}
}

// gate blocks every command until released.
type gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gate) Execute(context.Context, string) int {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return 0
}

func TestEngine_StopHonorsShutdownTimeout(t *testing.T) {
	t.Parallel()
	g := &gate{started: make(chan struct{}), release: make(chan struct{})}
	cfg := testConfig()
	cfg.ShutdownTimeout = 20 * time.Millisecond
	eng, _ := newEngine(t, g, engine.WithConfig(cfg))
	ctx := context.Background()

	if _, err := eng.Enqueue(ctx, job.Request{ID: "slow", Command: "sleep 60"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-g.started

	if err := eng.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop = %v, want deadline exceeded", err)
	}
	close(g.release)
	if err := eng.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := mustGet(t, eng, "slow"); got.State != job.StateCompleted {
		t.Fatalf("state = %s, want completed", got.State)
	}
}

// lifecycleTracker records every hook it receives.
type lifecycleTracker struct {
	mu     sync.Mutex
	events []string
}

func (e *lifecycleTracker) Name() string { return "lifecycle-tracker" }

func (e *lifecycleTracker) add(ev string) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *lifecycleTracker) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *lifecycleTracker) OnJobEnqueued(context.Context, *job.Job) error {
	e.add("enqueued")
	return nil
}

func (e *lifecycleTracker) OnJobClaimed(context.Context, *job.Job, string) error {
	e.add("claimed")
	return nil
}

func (e *lifecycleTracker) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	e.add("completed")
	return nil
}

func (e *lifecycleTracker) OnShutdown(context.Context) error {
	e.add("shutdown")
	return nil
}

func TestEngine_ExtensionLifecycleEvents(t *testing.T) {
	t.Parallel()
	tracker := &lifecycleTracker{}
	eng, _ := newEngine(t, executor.NewScript(), engine.WithExtension(tracker))
	ctx := context.Background()

	if _, err := eng.Enqueue(ctx, job.Request{ID: "j", Command: "true"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return mustGet(t, eng, "j").State == job.StateCompleted })
	stopEngine(t, eng)

	want := []string{"enqueued", "claimed", "completed", "shutdown"}
	got := tracker.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestEngine_TelemetryProviders(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	eng, _ := newEngine(t, executor.NewScript(),
		engine.WithMeterProvider(mp),
		engine.WithTracerProvider(tp),
	)
	ctx := context.Background()

	if _, err := eng.Enqueue(ctx, job.Request{ID: "t", Command: "true"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return mustGet(t, eng, "t").State == job.StateCompleted })
	stopEngine(t, eng)

	if spans := sr.Ended(); len(spans) != 1 || spans[0].Name() != "queuectl.job.execute" {
		t.Fatalf("spans = %d, want one queuectl.job.execute", len(spans))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, want := range []string{"queuectl.job.enqueued", "queuectl.job.completed", "queuectl.job.duration", "queuectl.job.executions"} {
		if !names[want] {
			t.Errorf("metric %s not recorded; have %v", want, names)
		}
	}
}
