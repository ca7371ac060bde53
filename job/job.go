// Package job provides durable deferred job scheduling backed by SQLite.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ldg-erp/duework/errors"
)

// Status represents the current state of a job
type Status string

const (
	// StatusWaiting means the job is due now and eligible to run
	StatusWaiting Status = "waiting"
	// StatusDelayed means the job becomes eligible at RunAt
	StatusDelayed Status = "delayed"
	// StatusActive means a worker has claimed the job and is executing it
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusWaiting, StatusDelayed, StatusActive,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses a job never leaves
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Default scheduling parameters applied when Options leaves them zero
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
)

// Job represents a unit of deferred work
//
// ARCHITECTURE: Generic job system with handler-based execution
// - Infrastructure (job package) is domain-agnostic
// - Domain packages provide handlers and payloads
// - Kind identifies which handler executes the job
// - Payload contains handler-specific data (domain logic controls structure)
type Job struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"` // "invoice.reminder", "invoice.recurring-generate"
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      Status          `json:"status"`
	RunAt       time.Time       `json:"run_at"`
	Attempts    int             `json:"attempts"` // execution attempts started so far
	MaxAttempts int             `json:"max_attempts"`
	BackoffBase time.Duration   `json:"backoff_base"`
	LastError   string          `json:"last_error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// Options tunes retry behavior for a job. Zero values take the defaults.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// NewJob creates a job of the given kind due at runAt. A runAt in the
// past (or now) yields a waiting job; a future runAt yields a delayed one.
func NewJob(kind string, payload json.RawMessage, runAt time.Time, opts Options) (*Job, error) {
	if kind == "" {
		return nil, errors.New("kind cannot be empty")
	}

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}

	now := time.Now()
	status := StatusWaiting
	if runAt.After(now) {
		status = StatusDelayed
	}

	return &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		Status:      status,
		RunAt:       runAt,
		MaxAttempts: opts.MaxAttempts,
		BackoffBase: opts.BackoffBase,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job as active and counts the attempt
func (j *Job) Start() {
	now := time.Now()
	j.Status = StatusActive
	j.Attempts++
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed with an optional result
func (j *Job) Complete(result json.RawMessage) {
	now := time.Now()
	j.Status = StatusCompleted
	j.Result = result
	j.LastError = ""
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as permanently failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = StatusFailed
	j.LastError = err.Error()
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason string) {
	now := time.Now()
	j.Status = StatusCancelled
	j.LastError = reason
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// ScheduleRetry returns the job to the delayed state with an exponential
// backoff computed from the attempts already made.
func (j *Job) ScheduleRetry(err error, now time.Time) {
	j.Status = StatusDelayed
	j.LastError = err.Error()
	j.RunAt = now.Add(j.RetryDelay())
	j.StartedAt = nil
	j.UpdatedAt = now
}

// RetryDelay computes the backoff before the next attempt.
// First retry waits BackoffBase, then doubles per attempt.
func (j *Job) RetryDelay() time.Duration {
	attempts := j.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return j.BackoffBase << (attempts - 1)
}

// ExhaustedRetries returns true once the job has used all its attempts
func (j *Job) ExhaustedRetries() bool {
	return j.Attempts >= j.MaxAttempts
}
