package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldg-erp/duework/errors"
)

func TestNewJob(t *testing.T) {
	t.Run("due now starts waiting", func(t *testing.T) {
		j, err := NewJob("test.kind", nil, time.Now().Add(-time.Second), Options{})
		require.NoError(t, err)

		assert.NotEmpty(t, j.ID)
		assert.Equal(t, "test.kind", j.Kind)
		assert.Equal(t, StatusWaiting, j.Status)
		assert.Equal(t, DefaultMaxAttempts, j.MaxAttempts)
		assert.Equal(t, DefaultBackoffBase, j.BackoffBase)
		assert.Zero(t, j.Attempts)
	})

	t.Run("future run_at starts delayed", func(t *testing.T) {
		runAt := time.Now().Add(time.Hour)
		j, err := NewJob("test.kind", nil, runAt, Options{})
		require.NoError(t, err)

		assert.Equal(t, StatusDelayed, j.Status)
		assert.Equal(t, runAt, j.RunAt)
	})

	t.Run("options override defaults", func(t *testing.T) {
		j, err := NewJob("test.kind", nil, time.Now(), Options{
			MaxAttempts: 7,
			BackoffBase: 5 * time.Second,
		})
		require.NoError(t, err)

		assert.Equal(t, 7, j.MaxAttempts)
		assert.Equal(t, 5*time.Second, j.BackoffBase)
	})

	t.Run("empty kind rejected", func(t *testing.T) {
		_, err := NewJob("", nil, time.Now(), Options{})
		assert.Error(t, err)
	})

	t.Run("payload carried through", func(t *testing.T) {
		payload := json.RawMessage(`{"invoiceId":"inv-1"}`)
		j, err := NewJob("test.kind", payload, time.Now(), Options{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"invoiceId":"inv-1"}`, string(j.Payload))
	})
}

func TestJobTransitions(t *testing.T) {
	newWaiting := func(t *testing.T) *Job {
		j, err := NewJob("test.kind", nil, time.Now(), Options{})
		require.NoError(t, err)
		return j
	}

	t.Run("start counts the attempt", func(t *testing.T) {
		j := newWaiting(t)
		j.Start()

		assert.Equal(t, StatusActive, j.Status)
		assert.Equal(t, 1, j.Attempts)
		require.NotNil(t, j.StartedAt)
	})

	t.Run("complete records result and clears error", func(t *testing.T) {
		j := newWaiting(t)
		j.Start()
		j.LastError = "transient"
		j.Complete(json.RawMessage(`{"ok":true}`))

		assert.Equal(t, StatusCompleted, j.Status)
		assert.Empty(t, j.LastError)
		assert.JSONEq(t, `{"ok":true}`, string(j.Result))
		require.NotNil(t, j.FinishedAt)
	})

	t.Run("fail records the error", func(t *testing.T) {
		j := newWaiting(t)
		j.Start()
		j.Fail(errors.New("boom"))

		assert.Equal(t, StatusFailed, j.Status)
		assert.Equal(t, "boom", j.LastError)
		require.NotNil(t, j.FinishedAt)
	})

	t.Run("cancel records the reason", func(t *testing.T) {
		j := newWaiting(t)
		j.Cancel("customer closed account")

		assert.Equal(t, StatusCancelled, j.Status)
		assert.Equal(t, "customer closed account", j.LastError)
	})

	t.Run("schedule retry returns to delayed with backoff", func(t *testing.T) {
		j := newWaiting(t)
		j.Start()

		now := time.Now()
		j.ScheduleRetry(errors.New("smtp timeout"), now)

		assert.Equal(t, StatusDelayed, j.Status)
		assert.Equal(t, "smtp timeout", j.LastError)
		assert.Nil(t, j.StartedAt)
		assert.Equal(t, now.Add(j.BackoffBase), j.RunAt)
	})
}

func TestRetryDelay(t *testing.T) {
	j, err := NewJob("test.kind", nil, time.Now(), Options{BackoffBase: time.Second})
	require.NoError(t, err)

	// Doubles per attempt already made
	j.Attempts = 1
	assert.Equal(t, time.Second, j.RetryDelay())
	j.Attempts = 2
	assert.Equal(t, 2*time.Second, j.RetryDelay())
	j.Attempts = 3
	assert.Equal(t, 4*time.Second, j.RetryDelay())

	// Defensive floor for an unstarted job
	j.Attempts = 0
	assert.Equal(t, time.Second, j.RetryDelay())
}

func TestExhaustedRetries(t *testing.T) {
	j, err := NewJob("test.kind", nil, time.Now(), Options{MaxAttempts: 2})
	require.NoError(t, err)

	assert.False(t, j.ExhaustedRetries())
	j.Attempts = 1
	assert.False(t, j.ExhaustedRetries())
	j.Attempts = 2
	assert.True(t, j.ExhaustedRetries())
}

func TestStatus(t *testing.T) {
	t.Run("terminal statuses", func(t *testing.T) {
		assert.False(t, StatusWaiting.IsTerminal())
		assert.False(t, StatusDelayed.IsTerminal())
		assert.False(t, StatusActive.IsTerminal())
		assert.True(t, StatusCompleted.IsTerminal())
		assert.True(t, StatusFailed.IsTerminal())
		assert.True(t, StatusCancelled.IsTerminal())
	})

	t.Run("validation", func(t *testing.T) {
		assert.True(t, IsValidStatus("waiting"))
		assert.True(t, IsValidStatus("cancelled"))
		assert.False(t, IsValidStatus("paused"))
		assert.False(t, IsValidStatus(""))
	})
}

func TestIsRetryable(t *testing.T) {
	t.Run("plain errors retry", func(t *testing.T) {
		assert.True(t, IsRetryable(errors.New("network blip")))
	})

	t.Run("nil does not retry", func(t *testing.T) {
		assert.False(t, IsRetryable(nil))
	})

	t.Run("non-retryable wrapper", func(t *testing.T) {
		err := NonRetryable(errors.New("invoice deleted"))
		assert.False(t, IsRetryable(err))
		assert.Equal(t, "invoice deleted", err.Error())
	})

	t.Run("wrapped non-retryable stays non-retryable", func(t *testing.T) {
		err := errors.Wrap(NonRetryable(errors.New("bad payload")), "handler")
		assert.False(t, IsRetryable(err))
	})

	t.Run("domain sentinels do not retry", func(t *testing.T) {
		assert.False(t, IsRetryable(errors.NewNotFoundError("invoice inv-1")))
		assert.False(t, IsRetryable(errors.Wrap(errors.ErrInvalidPayload, "missing invoiceId")))
		assert.False(t, IsRetryable(errors.ErrInvalidState))
	})

	t.Run("nil unwraps to nil", func(t *testing.T) {
		assert.Nil(t, NonRetryable(nil))
	})
}
