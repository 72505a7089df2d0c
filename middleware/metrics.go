package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/queuectl/job"
)

// meterName is the instrumentation scope name for queuectl metrics.
const meterName = "github.com/xraph/queuectl"

// Metrics returns middleware that records per-execution metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - queuectl.job.duration (Float64Histogram): execution time in seconds,
//     with attribute status ("ok" or "error")
//   - queuectl.job.executions (Int64Counter): total executions,
//     with attributes status and retry ("true" when attempts > 0)
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"queuectl.job.duration",
		metric.WithDescription("Duration of command execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"queuectl.job.executions",
		metric.WithDescription("Total number of command executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) int {
		start := time.Now()
		code := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if code != 0 {
			status = "error"
		}

		duration.Record(ctx, elapsed, metric.WithAttributes(
			attribute.String("status", status),
		))
		executions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", status),
			attribute.Bool("retry", j.Attempts > 0),
		))

		return code
	}
}
