package config

import "github.com/ldg-erp/duework/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "duework.db" per defaults.go

	// Queue: max_attempts must allow at least one run
	if c.Queue.MaxAttempts < 1 {
		return errors.Newf("queue.max_attempts must be >= 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.BackoffBaseMS < 0 {
		return errors.Newf("queue.backoff_base_ms must be >= 0, got %d", c.Queue.BackoffBaseMS)
	}
	if c.Queue.RetentionDays < 0 {
		return errors.Newf("queue.retention_days must be >= 0, got %d", c.Queue.RetentionDays)
	}

	// Worker concurrency: 0 = no background workers, negative = invalid
	if c.Worker.Concurrency < 0 {
		return errors.Newf("worker.concurrency must be >= 0, got %d", c.Worker.Concurrency)
	}
	if c.Worker.PollIntervalMS <= 0 {
		return errors.Newf("worker.poll_interval_ms must be > 0, got %d", c.Worker.PollIntervalMS)
	}
	if c.Worker.JobTimeoutSeconds <= 0 {
		return errors.Newf("worker.job_timeout_seconds must be > 0, got %d", c.Worker.JobTimeoutSeconds)
	}
	if c.Worker.StopTimeoutSeconds <= 0 {
		return errors.Newf("worker.stop_timeout_seconds must be > 0, got %d", c.Worker.StopTimeoutSeconds)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr cannot be empty when metrics are enabled")
	}

	// Mail rate: 0 = unlimited, negative = invalid
	if c.Mail.MaxPerMinute < 0 {
		return errors.Newf("mail.max_per_minute must be >= 0, got %d", c.Mail.MaxPerMinute)
	}

	return nil
}
