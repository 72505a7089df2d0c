package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/queuectl/job"
)

// Logging returns middleware that logs command start and result.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) int {
		logger.Info("job started",
			slog.String("job_id", j.ID),
			slog.String("command", j.Command),
			slog.Int("attempt", j.Attempts+1),
		)

		start := time.Now()
		code := next(ctx)
		elapsed := time.Since(start)

		if code != 0 {
			logger.Warn("job failed",
				slog.String("job_id", j.ID),
				slog.Int("exit_code", code),
				slog.Duration("elapsed", elapsed),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_id", j.ID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return code
	}
}
