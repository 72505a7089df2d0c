package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/queuectl/ext"
	"github.com/xraph/queuectl/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Extension)(nil)
	_ ext.JobEnqueued  = (*Extension)(nil)
	_ ext.JobClaimed   = (*Extension)(nil)
	_ ext.JobCompleted = (*Extension)(nil)
	_ ext.JobRetrying  = (*Extension)(nil)
	_ ext.JobDead      = (*Extension)(nil)
	_ ext.JobRequeued  = (*Extension)(nil)
	_ ext.JobReaped    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record.
type AuditEvent struct {
	Time     time.Time `json:"time"`
	Action   string    `json:"action"`
	Resource string    `json:"resource"`
	Category string    `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges queuectl lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess, j.ID, "",
		"command", j.Command,
		"max_retries", j.MaxRetries,
	)
}

// OnJobClaimed implements ext.JobClaimed.
func (e *Extension) OnJobClaimed(ctx context.Context, j *job.Job, workerID string) error {
	return e.record(ctx, ActionJobClaimed, SeverityInfo, OutcomeSuccess, j.ID, "",
		"command", j.Command,
		"worker_id", workerID,
		"attempts", j.Attempts,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess, j.ID, "",
		"command", j.Command,
		"attempts", j.Attempts,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure, j.ID, "command failed",
		"command", j.Command,
		"attempt", attempt,
		"max_retries", j.MaxRetries,
		"next_run_at", nextRunAt.UTC().Format(time.RFC3339),
	)
}

// OnJobDead implements ext.JobDead.
func (e *Extension) OnJobDead(ctx context.Context, j *job.Job, exitCode int) error {
	return e.record(ctx, ActionJobDead, SeverityCritical, OutcomeFailure, j.ID,
		fmt.Sprintf("retries exhausted, last exit code %d", exitCode),
		"command", j.Command,
		"attempts", j.Attempts,
		"exit_code", exitCode,
	)
}

// OnJobRequeued implements ext.JobRequeued.
func (e *Extension) OnJobRequeued(ctx context.Context, jobID string) error {
	return e.record(ctx, ActionJobRequeued, SeverityInfo, OutcomeSuccess, jobID, "")
}

// OnJobReaped implements ext.JobReaped.
func (e *Extension) OnJobReaped(ctx context.Context, jobID string) error {
	return e.record(ctx, ActionJobReaped, SeverityWarning, OutcomeFailure, jobID, "processing past stuck threshold")
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
// Recorder failures are logged and never returned.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	jobID, reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	var meta map[string]any
	if len(kvPairs) > 0 {
		meta = make(map[string]any, len(kvPairs)/2)
		for i := 0; i+1 < len(kvPairs); i += 2 {
			key, ok := kvPairs[i].(string)
			if !ok {
				key = fmt.Sprintf("%v", kvPairs[i])
			}
			meta[key] = kvPairs[i+1]
		}
	}

	evt := &AuditEvent{
		Time:       e.now().UTC(),
		Action:     action,
		Resource:   ResourceJob,
		Category:   CategoryJob,
		ResourceID: jobID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", jobID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
