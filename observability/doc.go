// Package observability provides OpenTelemetry instrumentation for
// queuectl. MetricsExtension implements the ext lifecycle hooks and keeps
// system-wide counters for enqueue, claim, completion, retry, dead-letter,
// requeue and reap events. SetupTracing installs the process-wide tracer
// provider that the middleware.Tracing spans are exported through.
//
// For per-execution duration and outcome metrics, see middleware.Metrics.
package observability
