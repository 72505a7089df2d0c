package executor_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/xraph/queuectl/executor"
)

func TestShell_ExitCodes(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	sh := executor.NewShell(executor.WithOutput(&out, &out))

	tests := []struct {
		name    string
		command string
		want    int
	}{
		{"success", "true", 0},
		{"failure", "false", 1},
		{"explicit code", "exit 42", 42},
		{"unknown command", "definitely-not-a-command-queuectl", 127},
		{"killed", "kill -9 $$", executor.CodeSignaled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sh.Execute(context.Background(), tt.command); got != tt.want {
				t.Errorf("Execute(%q) = %d, want %d", tt.command, got, tt.want)
			}
		})
	}
}

func TestShell_OutputAndEnv(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	sh := executor.NewShell(
		executor.WithOutput(&out, &out),
		executor.WithEnv("QUEUECTL_TEST_VALUE=hello"),
		executor.WithDir(t.TempDir()),
	)

	if code := sh.Execute(context.Background(), `echo "$QUEUECTL_TEST_VALUE"`); code != 0 {
		t.Fatalf("Execute = %d, want 0", code)
	}
	if got := strings.TrimSpace(out.String()); got != "hello" {
		t.Fatalf("output = %q, want hello", got)
	}
}

func TestShell_IgnoresCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	sh := executor.NewShell(executor.WithOutput(&out, &out))
	if code := sh.Execute(ctx, "sleep 0.1; exit 3"); code != 3 {
		t.Fatalf("Execute = %d, want 3 (command must run to completion)", code)
	}
}

func TestShell_MissingInterpreter(t *testing.T) {
	t.Parallel()
	sh := executor.NewShell(executor.WithShell("/nonexistent/shell"))
	if code := sh.Execute(context.Background(), "true"); code != executor.CodeNotStarted {
		t.Fatalf("Execute = %d, want %d", code, executor.CodeNotStarted)
	}
}

func TestScript(t *testing.T) {
	t.Parallel()
	s := executor.NewScript().On("flaky", 1, 1, 0)
	s.Default = 9

	want := []int{1, 1, 0, 0}
	for i, w := range want {
		if got := s.Execute(context.Background(), "flaky"); got != w {
			t.Fatalf("call %d = %d, want %d", i, got, w)
		}
	}
	if got := s.Execute(context.Background(), "other"); got != 9 {
		t.Fatalf("unknown command = %d, want 9", got)
	}
	if calls := s.Calls(); len(calls) != 5 || calls[4] != "other" {
		t.Fatalf("Calls = %v", calls)
	}
}

func TestFunc(t *testing.T) {
	t.Parallel()
	f := executor.Func(func(_ context.Context, command string) int { return len(command) })
	if got := f.Execute(context.Background(), "abc"); got != 3 {
		t.Fatalf("Execute = %d, want 3", got)
	}
}
