package job

import (
	"database/sql"
	"time"

	"github.com/ldg-erp/duework/errors"
)

// Store handles persistence of jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, kind, payload, status, run_at, attempts, max_attempts,
	backoff_ms, last_error, result, created_at, updated_at, started_at, finished_at`

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO jobs (
			id, kind, payload, status, run_at,
			attempts, max_attempts, backoff_ms,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := string(job.Payload)
	if payload == "" {
		payload = "{}"
	}

	_, err := s.db.Exec(query,
		job.ID,
		job.Kind,
		payload,
		job.Status,
		job.RunAt.UTC(),
		job.Attempts,
		job.MaxAttempts,
		job.BackoffBase.Milliseconds(),
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	return job, nil
}

// UpdateJob updates an existing job in the database
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE jobs
		SET status = ?,
		    run_at = ?,
		    attempts = ?,
		    last_error = ?,
		    result = ?,
		    started_at = ?,
		    finished_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	lastError := sql.NullString{String: job.LastError, Valid: job.LastError != ""}
	result := sql.NullString{String: string(job.Result), Valid: len(job.Result) > 0}

	res, err := s.db.Exec(query,
		job.Status,
		job.RunAt.UTC(),
		job.Attempts,
		lastError,
		result,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		job.UpdatedAt.UTC(),
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job %s", job.ID)
	}

	return nil
}

// ClaimNextDue atomically claims the oldest due job, moving it from
// waiting/delayed to active inside a transaction. The status transition
// is the lock: a job lost to a concurrent claimer is skipped, and nil
// is returned when nothing is due.
func (s *Store) ClaimNextDue(now time.Time) (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin claim transaction")
	}
	defer tx.Rollback()

	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status IN ('waiting', 'delayed')
		  AND run_at <= ?
		ORDER BY run_at ASC, created_at ASC
		LIMIT 1`

	job, err := scanJob(tx.QueryRow(query, now.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Nothing due - not an error
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to select due job")
	}

	job.Start()

	res, err := tx.Exec(`
		UPDATE jobs
		SET status = ?, attempts = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('waiting', 'delayed')`,
		job.Status,
		job.Attempts,
		nullTime(job.StartedAt),
		job.UpdatedAt.UTC(),
		job.ID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim job")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		// Lost the race to another claimer
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit claim")
	}

	return job, nil
}

// CancelJob transitions a waiting or delayed job to cancelled.
// Active and terminal jobs cannot be cancelled.
func (s *Store) CancelJob(id string, reason string) error {
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, last_error = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('waiting', 'delayed')`,
		StatusCancelled, reason, time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to cancel job")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		// Distinguish missing from wrong state
		job, getErr := s.GetJob(id)
		if getErr != nil {
			return getErr
		}
		return errors.Wrapf(errors.ErrInvalidState,
			"job %s cannot be cancelled (status: %s)", id, job.Status)
	}

	return nil
}

// ListJobs returns jobs ordered newest first, optionally filtered by status
func (s *Store) ListJobs(status *Status, limit int) ([]*Job, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	if status != nil {
		query = baseQuery + ` WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{*status, limit}
	} else {
		query = baseQuery + ` ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// ListPendingJobs returns all jobs that have not yet reached a terminal state
func (s *Store) ListPendingJobs(limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status IN ('waiting', 'delayed', 'active')
		ORDER BY run_at ASC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "pending jobs")
}

// RecoverOrphanedJobs returns jobs stuck in the active state to waiting
// so they run again. The attempt they were consumed by is given back.
// This handles ungraceful shutdowns (crash, kill -9, power loss).
func (s *Store) RecoverOrphanedJobs() (int, error) {
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?,
		    attempts = CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END,
		    started_at = NULL,
		    last_error = '',
		    updated_at = ?
		WHERE status = ?`,
		StatusWaiting, time.Now().UTC(), StatusActive,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to recover orphaned jobs")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// CountByStatus returns the number of jobs in each status
func (s *Store) CountByStatus() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}

	return counts, nil
}

// CleanupOldJobs removes terminal jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UTC()

	res, err := s.db.Exec(`
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(r rowScanner) (*Job, error) {
	var job Job
	var payload, lastError, result sql.NullString
	var backoffMS int64
	var startedAt, finishedAt sql.NullTime

	err := r.Scan(
		&job.ID,
		&job.Kind,
		&payload,
		&job.Status,
		&job.RunAt,
		&job.Attempts,
		&job.MaxAttempts,
		&backoffMS,
		&lastError,
		&result,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	job.LastError = lastError.String
	if result.Valid {
		job.Result = []byte(result.String)
	}
	job.BackoffBase = time.Duration(backoffMS) * time.Millisecond
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}

	return &job, nil
}

// scanJobs is a helper that scans multiple jobs from query rows
func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return jobs, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
