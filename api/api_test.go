package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/api"
	"github.com/xraph/queuectl/engine"
	"github.com/xraph/queuectl/executor"
	"github.com/xraph/queuectl/job"
	"github.com/xraph/queuectl/store/memory"
)

func newServer(t *testing.T, opts ...api.Option) (*httptest.Server, *engine.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	eng, err := engine.New(s, engine.WithExecutor(executor.NewScript()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	srv := httptest.NewServer(api.New(eng, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, eng, s
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

// seedDead drives a job to dead through the store contract.
func seedDead(t *testing.T, s *memory.Store, jobID string) {
	t.Helper()
	ctx := context.Background()
	zero := 0
	now := time.Now()
	j, err := job.NewJob(job.Request{ID: jobID, Command: "exit 1", MaxRetries: &zero}, now)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if ok, err := s.TryClaim(ctx, jobID, now); err != nil || !ok {
		t.Fatalf("TryClaim = %v, %v", ok, err)
	}
	if err := s.ApplyOutcome(ctx, jobID, job.Transition{To: job.StateDead, Attempts: 1, UpdatedAt: now}); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
}

func TestCreateJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"id":"job1","command":"echo hi","max_retries":2}`, http.StatusCreated},
		{"generated id", `{"command":"true"}`, http.StatusCreated},
		{"missing command", `{"id":"x"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"negative retries", `{"command":"true","max_retries":-3}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, _, _ := newServer(t)
			resp, body := do(t, http.MethodPost, srv.URL+"/v1/jobs", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body=%s", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantStatus != http.StatusCreated {
				var e struct{ Error string }
				if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
					t.Fatalf("expected error body, got %s", body)
				}
				return
			}
			var j job.Job
			if err := json.Unmarshal(body, &j); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if j.ID == "" || j.State != job.StatePending || j.Attempts != 0 {
				t.Fatalf("created job = %+v", j)
			}
		})
	}
}

func TestCreateJob_DuplicateConflict(t *testing.T) {
	t.Parallel()
	srv, eng, _ := newServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/jobs", `{"id":"dup","command":"first"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create = %d", resp.StatusCode)
	}
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/jobs", `{"id":"dup","command":"second"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create = %d; body=%s", resp.StatusCode, body)
	}

	j, err := eng.Get(context.Background(), "dup")
	if err != nil || j.Command != "first" {
		t.Fatalf("original job changed: %+v, %v", j, err)
	}
}

func TestCreateJob_RateLimited(t *testing.T) {
	t.Parallel()
	srv, _, _ := newServer(t, api.WithEnqueueRateLimit(rate.Every(time.Hour), 1))

	if resp, _ := do(t, http.MethodPost, srv.URL+"/v1/jobs", `{"command":"true"}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create = %d", resp.StatusCode)
	}
	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/jobs", `{"command":"true"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second create = %d, want 429", resp.StatusCode)
	}
}

func TestListAndGetJobs(t *testing.T) {
	t.Parallel()
	srv, eng, s := newServer(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := eng.Enqueue(ctx, job.Request{ID: id, Command: "true"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	seedDead(t, s, "d")

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantIDs    []string
	}{
		{"all", "", http.StatusOK, []string{"a", "b", "c", "d"}},
		{"pending", "?state=pending", http.StatusOK, []string{"a", "b", "c"}},
		{"dead", "?state=dead", http.StatusOK, []string{"d"}},
		{"completed empty", "?state=completed", http.StatusOK, []string{}},
		{"page", "?limit=2&offset=1", http.StatusOK, []string{"b", "c"}},
		{"bad state", "?state=failed", http.StatusBadRequest, nil},
		{"bad limit", "?limit=zero", http.StatusBadRequest, nil},
		{"negative offset", "?offset=-1", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, srv.URL+"/v1/jobs"+tt.query, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body=%s", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantIDs == nil {
				return
			}
			var jobs []job.Job
			if err := json.Unmarshal(body, &jobs); err != nil {
				t.Fatalf("decode: %v; body=%s", err, body)
			}
			if len(jobs) != len(tt.wantIDs) {
				t.Fatalf("got %d jobs, want %v", len(jobs), tt.wantIDs)
			}
			for i, want := range tt.wantIDs {
				if jobs[i].ID != want {
					t.Errorf("jobs[%d] = %s, want %s", i, jobs[i].ID, want)
				}
			}
		})
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/jobs/b", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"id":"b"`) {
		t.Fatalf("GET /v1/jobs/b = %d %s", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/jobs/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET missing = %d, want 404", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	srv, eng, s := newServer(t)
	if _, err := eng.Enqueue(context.Background(), job.Request{ID: "p", Command: "true"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	seedDead(t, s, "d")

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/stats", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stats engine.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 2 || stats.Counts[job.StatePending] != 1 || stats.Counts[job.StateDead] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if _, ok := stats.Counts[job.StateProcessing]; !ok {
		t.Fatalf("stats missing zero-count state: %+v", stats.Counts)
	}
}

func TestDLQ(t *testing.T) {
	t.Parallel()
	srv, eng, s := newServer(t)
	ctx := context.Background()
	seedDead(t, s, "d1")
	seedDead(t, s, "d2")
	if _, err := eng.Enqueue(ctx, job.Request{ID: "live", Command: "true"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/dlq", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /v1/dlq = %d", resp.StatusCode)
	}
	var dead []job.Job
	if err := json.Unmarshal(body, &dead); err != nil || len(dead) != 2 {
		t.Fatalf("dead = %s, %v", body, err)
	}

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"dead job", "d1", http.StatusOK},
		{"already requeued", "d1", http.StatusConflict},
		{"not dead", "live", http.StatusConflict},
		{"unknown", "nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, body := do(t, http.MethodPost, srv.URL+"/v1/dlq/"+tt.id+"/retry", "")
		if resp.StatusCode != tt.wantStatus {
			t.Fatalf("%s: status = %d, want %d; body=%s", tt.name, resp.StatusCode, tt.wantStatus, body)
		}
	}

	j, err := eng.Get(ctx, "d1")
	if err != nil || j.State != job.StatePending || j.Attempts != 0 || j.NextRunAt != 0 {
		t.Fatalf("requeued job = %+v, %v", j, err)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/dlq/retry", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"count":1`) {
		t.Fatalf("retry all = %d %s", resp.StatusCode, body)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv, _, _ := newServer(t)
	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Fatalf("healthz = %d %s", resp.StatusCode, body)
	}
}

// pingFailStore reports the store as unreachable.
type pingFailStore struct{ *memory.Store }

func (pingFailStore) Ping(context.Context) error { return queuectl.ErrStoreClosed }

func TestHealthz_Degraded(t *testing.T) {
	t.Parallel()
	eng, err := engine.New(pingFailStore{memory.New()}, engine.WithExecutor(executor.NewScript()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	srv := httptest.NewServer(api.New(eng).Handler())
	defer srv.Close()

	resp, _ := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz = %d, want 503", resp.StatusCode)
	}
}
