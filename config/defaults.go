package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "duework.db")

	// Queue defaults
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base_ms", 1000)
	v.SetDefault("queue.retention_days", 30)

	// Worker defaults
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.poll_interval_ms", 500)
	v.SetDefault("worker.job_timeout_seconds", 60)
	v.SetDefault("worker.stop_timeout_seconds", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	// Mail defaults
	v.SetDefault("mail.from", "billing@localhost")
	v.SetDefault("mail.base_url", "http://localhost:3000")
	v.SetDefault("mail.max_per_minute", 30)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "DUEWORK_DATABASE_PATH")
	v.BindEnv("mail.from", "DUEWORK_MAIL_FROM")
	v.BindEnv("mail.base_url", "DUEWORK_MAIL_BASE_URL")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "duework.db" // Fallback default
	}
	return c.Database.Path
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Worker: {Concurrency: %d}, Queue: {MaxAttempts: %d}}",
		c.Database.Path, c.Worker.Concurrency, c.Queue.MaxAttempts)
}
