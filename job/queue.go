package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ldg-erp/duework/errors"
)

const (
	// MaxJobsLimit is the maximum number of jobs returned by unbounded listings
	MaxJobsLimit = 10000
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Queue is the enqueue-side API for the durable job store. It validates
// payloads against the handler registry before any row is written, and
// notifies subscribers of job state changes.
type Queue struct {
	store       *Store
	registry    *Registry
	defaults    Options
	metrics     *Metrics
	mu          sync.RWMutex
	subscribers []chan *Job
}

// NewQueue creates a job queue backed by the given database. The registry
// is consulted for kind validation at enqueue time; jobs of unregistered
// kinds are rejected. metrics may be nil.
func NewQueue(db *sql.DB, registry *Registry, defaults Options, metrics *Metrics) *Queue {
	return &Queue{
		store:       NewStore(db),
		registry:    registry,
		defaults:    defaults,
		metrics:     metrics,
		subscribers: make([]chan *Job, 0),
	}
}

// Store exposes the underlying store (used by the worker pool)
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue validates and persists a job of the given kind, due after delay.
// A zero or negative delay makes the job eligible immediately.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload json.RawMessage, delay time.Duration) (*Job, error) {
	return q.EnqueueAt(ctx, kind, payload, time.Now().Add(delay))
}

// EnqueueAt validates and persists a job of the given kind, due at runAt.
func (q *Queue) EnqueueAt(ctx context.Context, kind string, payload json.RawMessage, runAt time.Time) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handler := q.registry.Get(kind)
	if handler == nil {
		return nil, errors.NewInvalidRequestError("unknown job kind %q", kind)
	}

	if validator, ok := handler.(PayloadValidator); ok {
		if err := validator.ValidatePayload(payload); err != nil {
			err = errors.Wrapf(errors.ErrInvalidPayload, "kind %s: %s", kind, err.Error())
			return nil, err
		}
	}

	job, err := NewJob(kind, payload, runAt, q.defaults)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Kind: %s", job.Kind))
		return nil, err
	}

	q.metrics.JobEnqueued(job.Kind)
	q.notifySubscribers(job)

	return job, nil
}

// Cancel cancels a waiting or delayed job. Active jobs run to completion
// and terminal jobs stay as they are; both return ErrInvalidState.
func (q *Queue) Cancel(ctx context.Context, id string, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if reason == "" {
		reason = "cancelled"
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CancelJob(id, reason); err != nil {
		return err
	}

	job, err := q.store.GetJob(id)
	if err == nil {
		q.notifySubscribers(job)
	}

	return nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.GetJob(id)
}

// ListJobs returns jobs, optionally filtered by status
func (q *Queue) ListJobs(status *Status, limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListJobs(status, limit)
}

// ListPendingJobs returns all jobs not yet in a terminal state
func (q *Queue) ListPendingJobs(limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListPendingJobs(limit)
}

// Cleanup removes old terminal jobs
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.CleanupOldJobs(olderThan)
}

// Stats summarizes the queue by job status
type Stats struct {
	Waiting   int `json:"waiting"`
	Delayed   int `json:"delayed"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats() (*Stats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	counts, err := q.store.CountByStatus()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Waiting:   counts[StatusWaiting],
		Delayed:   counts[StatusDelayed],
		Active:    counts[StatusActive],
		Completed: counts[StatusCompleted],
		Failed:    counts[StatusFailed],
		Cancelled: counts[StatusCancelled],
	}
	for _, count := range counts {
		stats.Total += count
	}

	return stats, nil
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed. This prevents double-close panics.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends job updates to all subscribers.
// REQUIRES: q.mu must be held by caller (either Lock or RLock).
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (q *Queue) notifySubscribers(job *Job) {
	for _, ch := range q.subscribers {
		select {
		case ch <- job:
		default:
			// Channel full, skip (non-blocking)
		}
	}
}

// NotifyUpdated publishes a job state change to subscribers. Called by
// the worker pool after it writes job transitions directly to the store.
func (q *Queue) NotifyUpdated(job *Job) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	q.notifySubscribers(job)
}
