package job

import (
	"context"
	"time"
)

// ClaimNext exclusively acquires the next ready job, or returns nil when
// none is available. A lost race against another worker is retried with
// the next candidate, never with the same job. Store errors abort the
// claim and are returned as-is.
func ClaimNext(ctx context.Context, s Store, now time.Time) (*Job, error) {
	var lost []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, err := s.NextCandidate(ctx, now, lost)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, nil
		}

		won, err := s.TryClaim(ctx, candidate.ID, now)
		if err != nil {
			return nil, err
		}
		if won {
			candidate.State = StateProcessing
			candidate.UpdatedAt = now.UTC()
			return candidate, nil
		}
		lost = append(lost, candidate.ID)
	}
}
