package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across duework.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldJobID     = "job_id"
	FieldJobKind   = "job_kind"
	FieldInvoiceID = "invoice_id"
	FieldCompanyID = "company_id"

	// Components
	FieldComponent = "component"
	FieldWorkerID  = "worker_id"

	// Operations
	FieldOperation = "operation"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldRunAt      = "run_at"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount   = "count"
	FieldAttempt = "attempt"

	// Status
	FieldStatus = "status"
	FieldState  = "state"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type WorkerPool struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewWorkerPool() *WorkerPool {
//	    return &WorkerPool{
//	        logger: logger.ComponentLogger("job.worker"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
// Use for sub-operations that need extra context fields.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
