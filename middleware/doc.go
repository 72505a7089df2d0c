// Package middleware provides composable middleware around command
// execution.
//
// A [Middleware] wraps the call into the executor for one claimed job.
// Middleware are composed into a chain using [Chain] and applied
// right-to-left: the first middleware in the slice is the outermost
// wrapper.
//
//	// recover → logging → executor
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// Handlers return the command's integer result code; 0 means success.
//
// # Built-in Middleware
//
//   - [Logging]: logs job ID, attempt, duration, and result code
//   - [Recover]: catches panics in the executor and reports a failure code
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-job duration and outcome counters
//
// There is no timeout middleware: a command runs until it returns.
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) int {
//	        // pre-processing
//	        code := next(ctx)
//	        // post-processing
//	        return code
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
