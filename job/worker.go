package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ldg-erp/duework/db"
	"github.com/ldg-erp/duework/errors"
)

// PoolConfig contains configuration for the worker pool
type PoolConfig struct {
	Concurrency  int           `json:"concurrency"`   // Number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // How often workers look for due jobs
	JobTimeout   time.Duration `json:"job_timeout"`   // Per-job execution deadline (0 disables)
	StopTimeout  time.Duration `json:"stop_timeout"`  // How long Stop waits for workers to drain

	// KindTimeouts overrides JobTimeout for specific job kinds.
	// A zero entry disables the deadline for that kind.
	KindTimeouts map[string]time.Duration `json:"kind_timeouts,omitempty"`
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency:  5,
		PollInterval: 500 * time.Millisecond,
		JobTimeout:   60 * time.Second,
		StopTimeout:  30 * time.Second,
	}
}

// Pool manages workers that claim and execute due jobs.
//
// Lifecycle: the pool derives its context from the parent passed at
// construction; cancelling the parent (or calling Stop) drains workers.
// Jobs interrupted by a shutdown are released back to the queue with
// their attempt refunded.
type Pool struct {
	queue     *Queue
	store     *Store
	registry  *Registry
	config    PoolConfig
	metrics   *Metrics
	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger
	mu        sync.Mutex
	active    int // workers currently executing a job
}

// NewPool creates a worker pool over the given queue and registry.
// metrics may be nil. Callers must register handlers before Start().
func NewPool(ctx context.Context, queue *Queue, registry *Registry, config PoolConfig, logger *zap.SugaredLogger, metrics *Metrics) *Pool {
	workerCtx, cancel := context.WithCancel(ctx)

	return &Pool{
		queue:     queue,
		store:     queue.Store(),
		registry:  registry,
		config:    config,
		metrics:   metrics,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		logger:    logger.Named("worker"),
	}
}

// Start recovers orphaned jobs and begins processing with the configured
// number of workers.
func (p *Pool) Start() {
	p.mu.Lock()
	// Recreate the context if a previous Stop cancelled it.
	// This must happen BEFORE spawning workers to avoid races.
	select {
	case <-p.ctx.Done():
		p.ctx, p.cancel = context.WithCancel(p.parentCtx)
		p.logger.Debugw("Recreated worker context after previous shutdown")
	default:
	}
	p.mu.Unlock()

	// Jobs left active by a crash run again
	recovered, err := p.store.RecoverOrphanedJobs()
	if err != nil {
		p.logger.Warnw("Failed to recover orphaned jobs", "error", err)
	} else if recovered > 0 {
		p.logger.Infow("Recovered orphaned jobs from previous run", "count", recovered)
	}

	for i := 0; i < p.config.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Infow("Worker pool started",
		"concurrency", p.config.Concurrency,
		"poll_interval", p.config.PollInterval,
		"kinds", p.registry.Kinds(),
	)
}

// Stop gracefully stops the worker pool. Workers finish the job in hand;
// Stop returns after they drain or after the configured stop timeout.
func (p *Pool) Stop() {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Infow("Worker pool stopped, all workers exited cleanly")
	case <-time.After(p.config.StopTimeout):
		p.logger.Warnw("Worker pool stop timeout, workers may still be draining",
			"timeout", p.config.StopTimeout)
	}
}

// ActiveWorkers returns how many workers are currently executing a job
func (p *Pool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// worker polls for due jobs until the pool context is cancelled
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoffDuration := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.processNextJob(); err != nil {
				select {
				case <-p.ctx.Done():
					// Shutting down - exit silently
					return
				default:
					if errors.Is(err, sql.ErrConnDone) || db.IsDatabaseClosed(err) {
						// Database closed during shutdown - exit silently
						return
					}
					errorCount++
					p.logger.Errorw("Worker error processing job",
						"worker_id", id,
						"error", err,
						"consecutive_errors", errorCount)

					// Back off after repeated failures to avoid hammering a sick store
					if errorCount >= maxConsecutiveErrors {
						p.logger.Warnw("Worker backing off due to consecutive errors",
							"worker_id", id,
							"backoff", backoffDuration,
							"consecutive_errors", errorCount)
						time.Sleep(backoffDuration)
						backoffDuration = min(backoffDuration*2, maxBackoff)
					}
				}
			} else {
				if errorCount > 0 {
					p.logger.Infow("Worker recovered from errors",
						"worker_id", id,
						"previous_error_count", errorCount)
				}
				errorCount = 0
				backoffDuration = time.Second
			}
		}
	}
}

// processNextJob claims the next due job and executes it
func (p *Pool) processNextJob() error {
	select {
	case <-p.ctx.Done():
		return nil // Graceful shutdown - don't claim new jobs
	default:
	}

	job, err := p.store.ClaimNextDue(time.Now())
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return nil // Nothing due
	}

	p.mu.Lock()
	p.active++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	p.metrics.JobStarted()
	started := time.Now()

	result, execErr := p.execute(job)
	elapsed := time.Since(started)

	if execErr != nil {
		select {
		case <-p.ctx.Done():
			// Shutdown interrupted the job: release it with the attempt
			// refunded so the next run is not penalized.
			p.logger.Infow("Job interrupted by shutdown, releasing back to queue",
				"job_id", job.ID, "kind", job.Kind)
			p.metrics.JobFinished(job.Kind, "released", elapsed.Seconds())
			if relErr := p.release(job); relErr != nil {
				p.logger.Errorw("Failed to release interrupted job",
					"job_id", job.ID, "error", relErr)
			}
			return nil
		default:
		}
		return p.handleFailure(job, execErr, elapsed)
	}

	job.Complete(result)
	if err := p.store.UpdateJob(job); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}
	p.queue.NotifyUpdated(job)
	p.metrics.JobFinished(job.Kind, "completed", elapsed.Seconds())

	p.logger.Infow("Job completed",
		"job_id", job.ID,
		"kind", job.Kind,
		"attempt", job.Attempts,
		"duration_ms", elapsed.Milliseconds())

	return nil
}

// execute runs the handler for a job under the per-job timeout,
// converting panics into errors so one bad handler cannot kill a worker.
func (p *Pool) execute(job *Job) (result json.RawMessage, err error) {
	handler := p.registry.Get(job.Kind)
	if handler == nil {
		// No amount of retrying will find a handler
		return nil, NonRetryable(errors.Newf("no handler registered for kind: %s", job.Kind))
	}

	timeout := p.config.JobTimeout
	if override, ok := p.config.KindTimeouts[job.Kind]; ok {
		timeout = override
	}

	ctx := p.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Handler panicked",
				"job_id", job.ID,
				"kind", job.Kind,
				"panic", r,
				"stack", string(debug.Stack()))
			err = errors.Newf("handler panic: %v", r)
		}
	}()

	return handler.Execute(ctx, job)
}

// handleFailure schedules a retry or fails the job permanently
func (p *Pool) handleFailure(job *Job, execErr error, elapsed time.Duration) error {
	if IsRetryable(execErr) && !job.ExhaustedRetries() {
		job.ScheduleRetry(execErr, time.Now())
		if err := p.store.UpdateJob(job); err != nil {
			return fmt.Errorf("failed to schedule retry for job %s: %w", job.ID, err)
		}
		p.queue.NotifyUpdated(job)
		p.metrics.JobRetried(job.Kind)
		p.metrics.JobFinished(job.Kind, "retried", elapsed.Seconds())

		p.logger.Warnw("Job attempt failed, retry scheduled",
			"job_id", job.ID,
			"kind", job.Kind,
			"attempt", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"retry_at", job.RunAt,
			"error", execErr)
		return nil
	}

	job.Fail(execErr)
	if err := p.store.UpdateJob(job); err != nil {
		return fmt.Errorf("failed to fail job %s: %w", job.ID, err)
	}
	p.queue.NotifyUpdated(job)
	p.metrics.JobFinished(job.Kind, "failed", elapsed.Seconds())

	p.logger.Errorw("Job failed permanently",
		"job_id", job.ID,
		"kind", job.Kind,
		"attempts", job.Attempts,
		"error", execErr)
	return nil
}

// release returns an interrupted job to the waiting state with its
// attempt refunded
func (p *Pool) release(job *Job) error {
	job.Status = StatusWaiting
	if job.Attempts > 0 {
		job.Attempts--
	}
	job.StartedAt = nil
	job.LastError = ""
	job.UpdatedAt = time.Now()
	if err := p.store.UpdateJob(job); err != nil {
		return err
	}
	p.queue.NotifyUpdated(job)
	return nil
}
