package job

import (
	"github.com/ldg-erp/duework/errors"
)

// nonRetryable marks a handler error that must not be retried.
type nonRetryable struct {
	err error
}

func (e *nonRetryable) Error() string { return e.err.Error() }
func (e *nonRetryable) Unwrap() error { return e.err }

// NonRetryable wraps an error so the worker fails the job immediately
// instead of scheduling a retry. Use for errors that no amount of
// retrying will fix, e.g. a referenced record that does not exist.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryable{err: err}
}

// IsRetryable reports whether a handler error should trigger a retry.
// Errors marked NonRetryable and validation/state sentinels are final;
// everything else (network, database, timeouts) is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var nr *nonRetryable
	if errors.As(err, &nr) {
		return false
	}

	if errors.IsAny(err,
		errors.ErrNotFound,
		errors.ErrInvalidPayload,
		errors.ErrInvalidRequest,
		errors.ErrInvalidState,
	) {
		return false
	}

	return true
}
