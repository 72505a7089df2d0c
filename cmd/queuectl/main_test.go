package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the CLI against a config file in dir and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", filepath.Join(dir, "config.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

// newWorkspace writes a config pointing at a SQLite file in a temp dir.
func newWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "driver: sqlite\ndsn: " + filepath.Join(dir, "queue.db") + "\nlog_level: error\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestEnqueueListStatus(t *testing.T) {
	dir := newWorkspace(t)

	out, err := run(t, dir, "enqueue", `{"id":"job1","command":"echo hi"}`)
	if err != nil || !strings.Contains(out, "enqueued job1") {
		t.Fatalf("enqueue json = %q, %v", out, err)
	}
	out, err = run(t, dir, "enqueue", "--id", "job2", "--command", "exit 1", "--max-retries", "0")
	if err != nil || !strings.Contains(out, "enqueued job2") {
		t.Fatalf("enqueue flags = %q, %v", out, err)
	}

	if _, err := run(t, dir, "enqueue", `{"id":"job1","command":"again"}`); err == nil {
		t.Fatal("duplicate enqueue succeeded")
	}

	out, err = run(t, dir, "list", "--state", "pending")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "job1") || !strings.Contains(out, "job2") {
		t.Fatalf("list output missing jobs:\n%s", out)
	}
	if strings.Index(out, "job1") > strings.Index(out, "job2") {
		t.Fatalf("list not in FIFO order:\n%s", out)
	}

	out, err = run(t, dir, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"pending", "2", "dead", "total"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestCommandErrors(t *testing.T) {
	dir := newWorkspace(t)

	tests := []struct {
		name string
		args []string
	}{
		{"enqueue without payload", []string{"enqueue"}},
		{"enqueue payload and flags", []string{"enqueue", `{"command":"x"}`, "--command", "y"}},
		{"enqueue invalid json", []string{"enqueue", `{`}},
		{"enqueue negative retries", []string{"enqueue", "--command", "true", "--max-retries", "-1"}},
		{"list unknown state", []string{"list", "--state", "failed"}},
		{"dlq retry needs target", []string{"dlq", "retry"}},
		{"dlq retry both", []string{"dlq", "retry", "x", "--all"}},
		{"dlq retry missing job", []string{"dlq", "retry", "nope"}},
		{"config unknown key", []string{"config", "get", "nope"}},
		{"config invalid value", []string{"config", "set", "workers", "zero"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, dir, tt.args...); err == nil {
				t.Fatalf("%v succeeded, want error", tt.args)
			}
		})
	}
}

func TestDLQRetryAllOnEmptyQueue(t *testing.T) {
	dir := newWorkspace(t)
	out, err := run(t, dir, "dlq", "retry", "--all")
	if err != nil || !strings.Contains(out, "requeued 0 jobs") {
		t.Fatalf("dlq retry --all = %q, %v", out, err)
	}
	out, err = run(t, dir, "dlq", "list")
	if err != nil || !strings.Contains(out, "no jobs") {
		t.Fatalf("dlq list = %q, %v", out, err)
	}
}

func TestConfigSetGetList(t *testing.T) {
	dir := newWorkspace(t)

	if out, err := run(t, dir, "config", "set", "max_retries", "5"); err != nil || !strings.Contains(out, "max_retries = 5") {
		t.Fatalf("config set = %q, %v", out, err)
	}
	out, err := run(t, dir, "config", "get", "max_retries")
	if err != nil || strings.TrimSpace(out) != "5" {
		t.Fatalf("config get = %q, %v", out, err)
	}

	// The saved file keeps keys that were already there.
	out, err = run(t, dir, "config", "list")
	if err != nil {
		t.Fatalf("config list: %v", err)
	}
	for _, want := range []string{"max_retries", "driver", "sqlite", "backoff_base"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config list missing %q:\n%s", want, out)
		}
	}

	// Jobs enqueued afterwards pick up the new default.
	if _, err := run(t, dir, "enqueue", "--id", "j", "--command", "true"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	out, err = run(t, dir, "list")
	if err != nil || !strings.Contains(out, "5") {
		t.Fatalf("list = %q, %v", out, err)
	}
}

func TestMigrate(t *testing.T) {
	dir := newWorkspace(t)
	for i := range 2 {
		if _, err := run(t, dir, "migrate"); err != nil {
			t.Fatalf("migrate #%d: %v", i+1, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "queue.db")); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestMongoDatabase(t *testing.T) {
	t.Parallel()
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017/jobs", "jobs"},
		{"mongodb://localhost:27017/", "queuectl"},
		{"mongodb://localhost:27017", "queuectl"},
		{"mongodb+srv://user:pw@cluster.example.com/prod?retryWrites=true", "prod"},
	}
	for _, tt := range tests {
		if got := mongoDatabase(tt.uri); got != tt.want {
			t.Errorf("mongoDatabase(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestAuditLog(t *testing.T) {
	dir := newWorkspace(t)
	auditPath := filepath.Join(dir, "audit.jsonl")

	if _, err := run(t, dir, "config", "set", "audit_log", auditPath); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if _, err := run(t, dir, "enqueue", `{"id":"audited","command":"true"}`); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("audit log has %d lines, want 1:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"action":"job.enqueued"`) || !strings.Contains(lines[0], `"resource_id":"audited"`) {
		t.Fatalf("unexpected audit record: %s", lines[0])
	}
}

func TestMigrateLogsStructuredAttrs(t *testing.T) {
	dir := t.TempDir()
	cfg := "driver: sqlite\ndsn: " + filepath.Join(dir, "queue.db") + "\nlog_level: debug\nlog_format: json\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--config", filepath.Join(dir, "config.yaml"), "migrate"})
	if err := root.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	records := make(map[string]map[string]any)
	for _, line := range strings.Split(strings.TrimSpace(errOut.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		msg, _ := rec["msg"].(string)
		if _, fromStore := rec["store"]; fromStore {
			msg = "store: " + msg
		}
		records[msg] = rec
	}

	running, ok := records["running migrations"]
	if !ok {
		t.Fatalf("no running migrations record in:\n%s", errOut.String())
	}
	if got, _ := running["driver"].(string); got != "sqlite" {
		t.Errorf("driver = %v, want sqlite", running["driver"])
	}

	applied, ok := records["store: migrations complete"]
	if !ok {
		t.Fatalf("no migrations complete record in:\n%s", errOut.String())
	}
	if got, _ := applied["store"].(string); got != "sqlite" {
		t.Errorf("store = %v, want sqlite", applied["store"])
	}
	if _, ok := applied["version"].(float64); !ok {
		t.Errorf("version = %v (%T), want a number", applied["version"], applied["version"])
	}
}
