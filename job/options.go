package job

// Options configures how enqueue requests become jobs.
type Options struct {
	// DefaultMaxRetries applies when a request omits max_retries.
	DefaultMaxRetries int

	// NewID generates an ID when a request omits one.
	NewID func() string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{DefaultMaxRetries: 3}
}

// Option is a functional option for building jobs from requests.
type Option func(*Options)

// WithDefaultMaxRetries sets the retry ceiling for requests that omit one.
func WithDefaultMaxRetries(n int) Option {
	return func(o *Options) {
		o.DefaultMaxRetries = n
	}
}

// WithIDGenerator overrides the generator used for requests without an ID.
func WithIDGenerator(fn func() string) Option {
	return func(o *Options) {
		o.NewID = fn
	}
}
