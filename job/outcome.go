package job

import (
	"math"
	"time"

	"github.com/xraph/queuectl/backoff"
)

// Decide computes the transition for a job whose command returned code.
//
//   - code 0: completed, attempts unchanged.
//   - otherwise attempts+1; pending with NextRunAt = now + delay(attempts)
//     while attempts <= MaxRetries, dead once it exceeds it.
//
// NextRunAt is left unchanged for completed and dead jobs.
func Decide(j *Job, code int, now time.Time, strategy backoff.Strategy) Transition {
	t := Transition{
		Attempts:  j.Attempts,
		NextRunAt: j.NextRunAt,
		UpdatedAt: now.UTC(),
	}

	if code == 0 {
		t.To = StateCompleted
		return t
	}

	t.Attempts = j.Attempts + 1
	if t.Attempts > j.MaxRetries {
		t.To = StateDead
		return t
	}

	t.To = StatePending
	t.NextRunAt = now.Unix() + delaySeconds(strategy.Delay(t.Attempts))
	return t
}

// Apply copies the transition onto j.
func (t Transition) Apply(j *Job) {
	j.State = t.To
	j.Attempts = t.Attempts
	j.NextRunAt = t.NextRunAt
	j.UpdatedAt = t.UpdatedAt
}

// delaySeconds rounds d up to whole seconds.
func delaySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
