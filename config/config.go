// Package config loads duework configuration from TOML files and the
// environment. Files merge in precedence order: system < user < project,
// with environment variables on top.
package config

// Config represents the core duework configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Mail     MailConfig     `mapstructure:"mail"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// QueueConfig configures enqueue-time job defaults
type QueueConfig struct {
	MaxAttempts   int `mapstructure:"max_attempts"`    // attempts before a job is failed permanently (default: 3)
	BackoffBaseMS int `mapstructure:"backoff_base_ms"` // base for exponential retry backoff (default: 1000)
	RetentionDays int `mapstructure:"retention_days"`  // completed/failed jobs older than this are purged (default: 30)
}

// WorkerConfig configures the worker pool
type WorkerConfig struct {
	Concurrency        int `mapstructure:"concurrency"`          // concurrent job workers (default: 5)
	PollIntervalMS     int `mapstructure:"poll_interval_ms"`     // how often workers look for due jobs (default: 500)
	JobTimeoutSeconds  int `mapstructure:"job_timeout_seconds"`  // per-job execution deadline (default: 60)
	StopTimeoutSeconds int `mapstructure:"stop_timeout_seconds"` // graceful shutdown deadline (default: 30)
}

// MetricsConfig configures the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"` // listen address for /metrics (default: ":9090")
}

// MailConfig configures outbound email
type MailConfig struct {
	From         string `mapstructure:"from"`           // sender address for reminder emails
	BaseURL      string `mapstructure:"base_url"`       // public URL prefix for invoice links
	MaxPerMinute int    `mapstructure:"max_per_minute"` // outbound send rate cap (default: 30)
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
