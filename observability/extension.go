package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/queuectl/ext"
	"github.com/xraph/queuectl/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobEnqueued  = (*MetricsExtension)(nil)
	_ ext.JobClaimed   = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobDead      = (*MetricsExtension)(nil)
	_ ext.JobRequeued  = (*MetricsExtension)(nil)
	_ ext.JobReaped    = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/queuectl/observability"

// MetricsExtension records lifecycle counters on an OpenTelemetry meter.
// Register it with the engine to track enqueue rates, completions,
// retries, dead letters, requeues and reaped jobs.
type MetricsExtension struct {
	JobEnqueued  metric.Int64Counter
	JobClaimed   metric.Int64Counter
	JobCompleted metric.Int64Counter
	JobRetried   metric.Int64Counter
	JobDead      metric.Int64Counter
	JobRequeued  metric.Int64Counter
	JobReaped    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on the provided
// meter. Use an sdk/metric ManualReader-backed meter in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// Instrument errors only occur for invalid names; the API still
		// returns a usable no-op instrument.
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}"))
		return c
	}
	return &MetricsExtension{
		JobEnqueued:  counter("queuectl.job.enqueued", "Jobs accepted as pending"),
		JobClaimed:   counter("queuectl.job.claimed", "Jobs claimed by a worker"),
		JobCompleted: counter("queuectl.job.completed", "Jobs whose command exited 0"),
		JobRetried:   counter("queuectl.job.retried", "Failed executions scheduled for retry"),
		JobDead:      counter("queuectl.job.dead", "Jobs that exhausted their retries"),
		JobRequeued:  counter("queuectl.job.requeued", "Dead jobs moved back to pending"),
		JobReaped:    counter("queuectl.job.reaped", "Stuck processing jobs returned to pending"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, _ *job.Job) error {
	m.JobEnqueued.Add(ctx, 1)
	return nil
}

// OnJobClaimed implements ext.JobClaimed.
func (m *MetricsExtension) OnJobClaimed(ctx context.Context, _ *job.Job, _ string) error {
	m.JobClaimed.Add(ctx, 1)
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, _ *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1)
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, _ *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1)
	return nil
}

// OnJobDead implements ext.JobDead.
func (m *MetricsExtension) OnJobDead(ctx context.Context, _ *job.Job, _ int) error {
	m.JobDead.Add(ctx, 1)
	return nil
}

// OnJobRequeued implements ext.JobRequeued.
func (m *MetricsExtension) OnJobRequeued(ctx context.Context, _ string) error {
	m.JobRequeued.Add(ctx, 1)
	return nil
}

// OnJobReaped implements ext.JobReaped.
func (m *MetricsExtension) OnJobReaped(ctx context.Context, _ string) error {
	m.JobReaped.Add(ctx, 1)
	return nil
}
