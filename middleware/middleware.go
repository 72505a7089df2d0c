package middleware

import (
	"context"

	"github.com/xraph/queuectl/job"
)

// Handler is the terminal function that runs a job's command and returns
// its result code.
type Handler func(ctx context.Context) int

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the claimed job, and the next handler
// to call.
type Middleware func(ctx context.Context, j *job.Job, next Handler) int

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(recover, logging) executes as:
//
//	recover → logging → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) int {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) int {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}
