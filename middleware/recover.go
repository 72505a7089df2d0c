package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/queuectl/job"
)

// PanicCode is the result code reported when the executor panics.
const PanicCode = -1

// Recover returns middleware that recovers from panics in the handler
// chain. A panic is logged with a stack trace and reported as PanicCode,
// so the job goes through the normal retry policy.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (code int) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job executor panicked",
					slog.String("job_id", j.ID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				code = PanicCode
			}
		}()
		return next(ctx)
	}
}
