// Package executor runs job commands. The core treats a command as an
// opaque string; an Executor decides what it means and reports an integer
// result code where 0 is success.
package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Executor runs a command synchronously and returns its result code.
type Executor interface {
	Execute(ctx context.Context, command string) int
}

// Result codes reported when a command cannot produce its own exit status.
const (
	// CodeNotStarted is returned when the command could not be started.
	CodeNotStarted = 127
	// CodeSignaled is returned when the command was killed by a signal.
	CodeSignaled = -1
)

// ──────────────────────────────────────────────────
// Shell
// ──────────────────────────────────────────────────

// Shell runs commands with "sh -c". Commands are not tied to ctx
// cancellation; a running command always finishes on its own.
type Shell struct {
	shell  string
	stdout io.Writer
	stderr io.Writer
	env    []string
	dir    string
	logger *slog.Logger
}

// ShellOption configures a Shell.
type ShellOption func(*Shell)

// WithShell sets the interpreter invoked as "<shell> -c <command>".
func WithShell(path string) ShellOption {
	return func(s *Shell) { s.shell = path }
}

// WithOutput redirects command stdout and stderr.
func WithOutput(stdout, stderr io.Writer) ShellOption {
	return func(s *Shell) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithEnv appends environment variables (KEY=value) for every command.
func WithEnv(env ...string) ShellOption {
	return func(s *Shell) { s.env = append(s.env, env...) }
}

// WithDir sets the working directory for commands.
func WithDir(dir string) ShellOption {
	return func(s *Shell) { s.dir = dir }
}

// WithLogger sets the logger used for start failures.
func WithLogger(l *slog.Logger) ShellOption {
	return func(s *Shell) { s.logger = l }
}

// NewShell creates a Shell executor writing to the process stdout/stderr.
func NewShell(opts ...ShellOption) *Shell {
	s := &Shell{
		shell:  "sh",
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs command and returns its exit code.
func (s *Shell) Execute(ctx context.Context, command string) int {
	cmd := exec.CommandContext(context.WithoutCancel(ctx), s.shell, "-c", command) //nolint:gosec // commands are the job payload
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	cmd.Dir = s.dir
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}

	err := cmd.Run()
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return CodeSignaled
	}

	s.logger.Warn("command failed to start",
		slog.String("command", command),
		slog.String("error", err.Error()),
	)
	return CodeNotStarted
}

// ──────────────────────────────────────────────────
// Func
// ──────────────────────────────────────────────────

// Func adapts an ordinary function to the Executor interface.
type Func func(ctx context.Context, command string) int

// Execute calls f.
func (f Func) Execute(ctx context.Context, command string) int {
	return f(ctx, command)
}

// ──────────────────────────────────────────────────
// Script
// ──────────────────────────────────────────────────

// Script is a deterministic executor that returns scripted result codes
// without starting processes. Each command consumes its codes in order;
// once exhausted, the last code repeats. Unknown commands return Default.
type Script struct {
	mu      sync.Mutex
	codes   map[string][]int
	calls   []string
	Default int
}

// NewScript creates a Script with no scripted commands.
func NewScript() *Script {
	return &Script{codes: make(map[string][]int)}
}

// On scripts the result codes returned for command.
func (s *Script) On(command string, codes ...int) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[command] = append(s.codes[command], codes...)
	return s
}

// Execute returns the next scripted code for command.
func (s *Script) Execute(_ context.Context, command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, command)
	codes, ok := s.codes[command]
	if !ok || len(codes) == 0 {
		return s.Default
	}
	code := codes[0]
	if len(codes) > 1 {
		s.codes[command] = codes[1:]
	}
	return code
}

// Calls returns the commands executed so far, in order.
func (s *Script) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}
