package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/queuectl/observability"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

var (
	// ErrUnknownKey is returned by Get and Set for a key outside Keys().
	ErrUnknownKey = errors.New("config: unknown key")
	// ErrInvalidValue is returned when a value does not parse or is out of
	// range for its key.
	ErrInvalidValue = errors.New("config: invalid value")
)

type field struct {
	get   func(*Config) string
	set   func(*Config, string) error
	check func(string) error
}

var fields = map[string]field{
	"driver":              stringField(func(c *Config) *string { return &c.Driver }, DriverSQLite, DriverPostgres, DriverRedis, DriverMongo, DriverMemory),
	"audit_log":           stringField(func(c *Config) *string { return &c.AuditLog }),
	"dsn":                 stringField(func(c *Config) *string { return &c.DSN }),
	"workers":             intField(func(c *Config) *int { return &c.Workers }, 1),
	"poll_interval":       durationField(func(c *Config) *time.Duration { return &c.PollInterval }, true),
	"max_retries":         intField(func(c *Config) *int { return &c.MaxRetries }, 0),
	"backoff_base":        floatField(func(c *Config) *float64 { return &c.BackoffBase }, 1),
	"backoff_max":         durationField(func(c *Config) *time.Duration { return &c.BackoffMax }, false),
	"stuck_job_threshold": durationField(func(c *Config) *time.Duration { return &c.StuckJobThreshold }, false),
	"shutdown_timeout":    durationField(func(c *Config) *time.Duration { return &c.ShutdownTimeout }, false),
	"listen_addr":         stringField(func(c *Config) *string { return &c.ListenAddr }),
	"log_level":           stringField(func(c *Config) *string { return &c.LogLevel }, "debug", "info", "warn", "error"),
	"log_format":          stringField(func(c *Config) *string { return &c.LogFormat }, "text", "json"),
	"trace_exporter": stringField(func(c *Config) *string { return &c.TraceExporter },
		observability.ExporterNone, observability.ExporterStdout,
		observability.ExporterOTLPHTTP, observability.ExporterOTLPGRPC),
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of key formatted as Set accepts it.
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return f.get(c), nil
}

// Set parses value for key and stores it when valid.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err := f.set(c, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}
	return nil
}

func stringField(ptr func(*Config) *string, allowed ...string) field {
	check := func(v string) error {
		if len(allowed) > 0 && !slices.Contains(allowed, v) {
			return fmt.Errorf("%q is not one of %s", v, strings.Join(allowed, ", "))
		}
		return nil
	}
	return field{
		get:   func(c *Config) string { return *ptr(c) },
		check: check,
		set: func(c *Config, v string) error {
			if err := check(v); err != nil {
				return err
			}
			*ptr(c) = v
			return nil
		},
	}
}

func intField(ptr func(*Config) *int, minimum int) field {
	parse := func(v string) (int, error) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", v)
		}
		if n < minimum {
			return 0, fmt.Errorf("must be >= %d, got %d", minimum, n)
		}
		return n, nil
	}
	return field{
		get:   func(c *Config) string { return strconv.Itoa(*ptr(c)) },
		check: func(v string) error { _, err := parse(v); return err },
		set: func(c *Config, v string) error {
			n, err := parse(v)
			if err != nil {
				return err
			}
			*ptr(c) = n
			return nil
		},
	}
}

func floatField(ptr func(*Config) *float64, minimum float64) field {
	parse := func(v string) (float64, error) {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		if f < minimum {
			return 0, fmt.Errorf("must be >= %g, got %g", minimum, f)
		}
		return f, nil
	}
	return field{
		get:   func(c *Config) string { return strconv.FormatFloat(*ptr(c), 'g', -1, 64) },
		check: func(v string) error { _, err := parse(v); return err },
		set: func(c *Config, v string) error {
			f, err := parse(v)
			if err != nil {
				return err
			}
			*ptr(c) = f
			return nil
		},
	}
}

// durationField accepts Go duration strings. A bare integer is read as
// seconds.
func durationField(ptr func(*Config) *time.Duration, positive bool) field {
	parse := func(v string) (time.Duration, error) {
		d, err := time.ParseDuration(v)
		if err != nil {
			n, convErr := strconv.Atoi(v)
			if convErr != nil {
				return 0, fmt.Errorf("%q is not a duration", v)
			}
			d = time.Duration(n) * time.Second
		}
		switch {
		case positive && d <= 0:
			return 0, fmt.Errorf("must be positive, got %s", d)
		case d < 0:
			return 0, fmt.Errorf("must not be negative, got %s", d)
		}
		return d, nil
	}
	return field{
		get:   func(c *Config) string { return ptr(c).String() },
		check: func(v string) error { _, err := parse(v); return err },
		set: func(c *Config, v string) error {
			d, err := parse(v)
			if err != nil {
				return err
			}
			*ptr(c) = d
			return nil
		},
	}
}
