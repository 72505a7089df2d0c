// Package config is the process configuration for the queuectl binary: a
// YAML file edited with `queuectl config set`, overlaid with QUEUECTL_*
// environment variables.
//
// The file lives at $QUEUECTL_CONFIG, or config.yaml under the user config
// directory. A missing file means all defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/observability"
)

// PathEnv names the environment variable that overrides the file location.
const PathEnv = "QUEUECTL_CONFIG"

// Config holds every process setting. Field names double as the keys
// accepted by Get and Set.
type Config struct {
	// ── Storage ──────────────────────────────────────────────────────────────
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn"    env:"DSN"`

	// ── Workers ──────────────────────────────────────────────────────────────
	Workers           int           `yaml:"workers"             env:"WORKERS"`
	PollInterval      time.Duration `yaml:"poll_interval"       env:"POLL_INTERVAL"`
	MaxRetries        int           `yaml:"max_retries"         env:"MAX_RETRIES"`
	BackoffBase       float64       `yaml:"backoff_base"        env:"BACKOFF_BASE"`
	BackoffMax        time.Duration `yaml:"backoff_max"         env:"BACKOFF_MAX"`
	StuckJobThreshold time.Duration `yaml:"stuck_job_threshold" env:"STUCK_JOB_THRESHOLD"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"    env:"SHUTDOWN_TIMEOUT"`

	// ── Server ───────────────────────────────────────────────────────────────
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// ── Logging and tracing ──────────────────────────────────────────────────
	LogLevel      string `yaml:"log_level"      env:"LOG_LEVEL"`
	LogFormat     string `yaml:"log_format"     env:"LOG_FORMAT"`
	TraceExporter string `yaml:"trace_exporter" env:"TRACE_EXPORTER"`

	// AuditLog is a JSON lines file receiving one record per job lifecycle
	// event. Empty disables the audit trail.
	AuditLog string `yaml:"audit_log" env:"AUDIT_LOG"`
}

// Default returns the configuration used when no file or variable sets a
// key.
func Default() Config {
	eng := queuectl.DefaultConfig()
	return Config{
		Driver:        DriverSQLite,
		DSN:           "queuectl.db",
		Workers:       eng.Concurrency,
		PollInterval:  eng.PollInterval,
		MaxRetries:    eng.DefaultMaxRetries,
		BackoffBase:   eng.BackoffBase,
		ListenAddr:    ":8080",
		LogLevel:      "info",
		LogFormat:     "text",
		TraceExporter: observability.ExporterNone,
	}
}

// DefaultPath returns $QUEUECTL_CONFIG, or config.yaml in the queuectl
// directory under os.UserConfigDir.
func DefaultPath() (string, error) {
	if p := os.Getenv(PathEnv); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate user config dir: %w", err)
	}
	return filepath.Join(dir, "queuectl", "config.yaml"), nil
}

// LoadFile reads path over the defaults, ignoring the environment. A
// missing file is not an error. Use it when the file will be saved back.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Load reads path and applies QUEUECTL_* environment overrides, then
// validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "QUEUECTL_"}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks every key with the same rules Set applies.
func (c *Config) Validate() error {
	for _, key := range Keys() {
		v, _ := c.Get(key) //nolint:errcheck // key comes from Keys
		if err := fields[key].check(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
		}
	}
	return nil
}

// Engine converts the settings that drive the worker pool.
func (c *Config) Engine() queuectl.Config {
	eng := queuectl.DefaultConfig()
	eng.Concurrency = c.Workers
	eng.PollInterval = c.PollInterval
	eng.DefaultMaxRetries = c.MaxRetries
	eng.BackoffBase = c.BackoffBase
	eng.BackoffMax = c.BackoffMax
	eng.StuckJobThreshold = c.StuckJobThreshold
	eng.ShutdownTimeout = c.ShutdownTimeout
	return eng
}

// Tracing converts the trace settings. Endpoint and TLS come from the
// standard OTEL_EXPORTER_OTLP_* variables read by the exporters.
func (c *Config) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		Exporter:    c.TraceExporter,
		ServiceName: "queuectl",
	}
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
