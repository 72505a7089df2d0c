package middleware

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/queuectl/job"
)

// tracerName is the instrumentation scope name for queuectl tracing.
const tracerName = "github.com/xraph/queuectl"

// Tracing returns middleware that wraps command execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used.
//
// Span attributes: queuectl.job.id, queuectl.job.attempt,
// queuectl.job.max_retries and, after execution, queuectl.job.exit_code.
// A non-zero exit code sets the span status to codes.Error.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) int {
		ctx, span := tracer.Start(ctx, "queuectl.job.execute",
			trace.WithAttributes(
				attribute.String("queuectl.job.id", j.ID),
				attribute.Int("queuectl.job.attempt", j.Attempts+1),
				attribute.Int("queuectl.job.max_retries", j.MaxRetries),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		code := next(ctx)
		span.SetAttributes(attribute.Int("queuectl.job.exit_code", code))
		if code != 0 {
			span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", code))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return code
	}
}
