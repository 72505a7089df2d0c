package queuectl

import (
	"fmt"
	"time"
)

// Config holds the tuning knobs for the engine and its worker pool.
type Config struct {
	// Concurrency is the number of worker loops started by the pool.
	Concurrency int

	// PollInterval is how long an idle worker waits before polling again.
	PollInterval time.Duration

	// DefaultMaxRetries is applied to enqueued jobs that omit max_retries.
	DefaultMaxRetries int

	// BackoffBase is the exponential base for retry delays.
	BackoffBase float64

	// BackoffUnit is the delay unit multiplied by BackoffBase^attempt.
	BackoffUnit time.Duration

	// BackoffMax caps a single retry delay. Zero means uncapped.
	BackoffMax time.Duration

	// ShutdownTimeout bounds how long Stop waits for in-flight commands.
	// Zero waits until every command returns.
	ShutdownTimeout time.Duration

	// MaxStoreErrors is the number of consecutive store failures after
	// which a worker gives up and exits. Zero never gives up.
	MaxStoreErrors int

	// StuckJobThreshold is how long a processing job may go without a
	// heartbeat before the reaper returns it to pending. Workers heartbeat
	// every third of it while a command runs, so it bounds recovery from a
	// crashed worker, not command run time. Zero disables the reaper.
	StuckJobThreshold time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       1,
		PollInterval:      1 * time.Second,
		DefaultMaxRetries: 3,
		BackoffBase:       2,
		BackoffUnit:       1 * time.Second,
		MaxStoreErrors:    5,
	}
}

// Validate reports the first setting that cannot drive a worker pool.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", ErrInvalidConfig, c.Concurrency)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	case c.DefaultMaxRetries < 0:
		return fmt.Errorf("%w: default max retries must be >= 0", ErrInvalidConfig)
	case c.BackoffBase < 1:
		return fmt.Errorf("%w: backoff base must be >= 1", ErrInvalidConfig)
	case c.BackoffUnit <= 0:
		return fmt.Errorf("%w: backoff unit must be positive", ErrInvalidConfig)
	case c.BackoffMax < 0, c.ShutdownTimeout < 0, c.StuckJobThreshold < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	case c.MaxStoreErrors < 0:
		return fmt.Errorf("%w: max store errors must be >= 0", ErrInvalidConfig)
	}
	return nil
}
