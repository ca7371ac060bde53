package job

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldg-erp/duework/errors"
	dbtest "github.com/ldg-erp/duework/internal/testing"
)

// echoHandler completes with whatever payload it was given
type echoHandler struct {
	kind string
}

func (h *echoHandler) Kind() string { return h.kind }

func (h *echoHandler) Execute(ctx context.Context, j *Job) (json.RawMessage, error) {
	return j.Payload, nil
}

// validatedHandler requires an invoiceId field in the payload
type validatedHandler struct {
	kind string
}

func (h *validatedHandler) Kind() string { return h.kind }

func (h *validatedHandler) Execute(ctx context.Context, j *Job) (json.RawMessage, error) {
	return nil, nil
}

func (h *validatedHandler) ValidatePayload(payload json.RawMessage) error {
	var p struct {
		InvoiceID string `json:"invoiceId"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if p.InvoiceID == "" {
		return errors.New("invoiceId is required")
	}
	return nil
}

func newTestQueue(t *testing.T, handlers ...Handler) *Queue {
	t.Helper()
	registry := NewRegistry()
	for _, h := range handlers {
		registry.Register(h)
	}
	return NewQueue(dbtest.CreateTestDB(t), registry, Options{}, nil)
}

func TestQueueEnqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("zero delay enqueues waiting", func(t *testing.T) {
		q := newTestQueue(t, &echoHandler{kind: "test.echo"})

		j, err := q.Enqueue(ctx, "test.echo", json.RawMessage(`{"n":1}`), 0)
		require.NoError(t, err)
		assert.Equal(t, StatusWaiting, j.Status)

		got, err := q.GetJob(j.ID)
		require.NoError(t, err)
		assert.Equal(t, j.ID, got.ID)
	})

	t.Run("delay enqueues delayed", func(t *testing.T) {
		q := newTestQueue(t, &echoHandler{kind: "test.echo"})

		j, err := q.Enqueue(ctx, "test.echo", nil, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, StatusDelayed, j.Status)
		assert.WithinDuration(t, time.Now().Add(time.Hour), j.RunAt, 5*time.Second)
	})

	t.Run("unregistered kind rejected", func(t *testing.T) {
		q := newTestQueue(t, &echoHandler{kind: "test.echo"})

		_, err := q.Enqueue(ctx, "test.unknown", nil, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})

	t.Run("handler validates payload", func(t *testing.T) {
		q := newTestQueue(t, &validatedHandler{kind: "test.validated"})

		_, err := q.Enqueue(ctx, "test.validated", json.RawMessage(`{}`), 0)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidPayloadError(err))

		_, err = q.Enqueue(ctx, "test.validated", json.RawMessage(`{"invoiceId":"inv-1"}`), 0)
		assert.NoError(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		q := newTestQueue(t, &echoHandler{kind: "test.echo"})

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := q.Enqueue(cancelled, "test.echo", nil, 0)
		assert.Error(t, err)
	})
}

func TestQueueEnqueueAt(t *testing.T) {
	q := newTestQueue(t, &echoHandler{kind: "test.echo"})

	runAt := time.Now().Add(30 * time.Minute)
	j, err := q.EnqueueAt(context.Background(), "test.echo", nil, runAt)
	require.NoError(t, err)
	assert.Equal(t, StatusDelayed, j.Status)
	assert.Equal(t, runAt, j.RunAt)
}

func TestQueueCancel(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, &echoHandler{kind: "test.echo"})

	t.Run("default reason", func(t *testing.T) {
		j, err := q.Enqueue(ctx, "test.echo", nil, time.Hour)
		require.NoError(t, err)

		require.NoError(t, q.Cancel(ctx, j.ID, ""))

		got, err := q.GetJob(j.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Equal(t, "cancelled", got.LastError)
	})

	t.Run("explicit reason", func(t *testing.T) {
		j, err := q.Enqueue(ctx, "test.echo", nil, time.Hour)
		require.NoError(t, err)

		require.NoError(t, q.Cancel(ctx, j.ID, "invoice voided"))

		got, err := q.GetJob(j.ID)
		require.NoError(t, err)
		assert.Equal(t, "invoice voided", got.LastError)
	})

	t.Run("missing job", func(t *testing.T) {
		err := q.Cancel(ctx, "no-such-id", "")
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestQueueStats(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, &echoHandler{kind: "test.echo"})

	_, err := q.Enqueue(ctx, "test.echo", nil, 0)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "test.echo", nil, time.Hour)
	require.NoError(t, err)
	j, err := q.Enqueue(ctx, "test.echo", nil, time.Hour)
	require.NoError(t, err)
	require.NoError(t, q.Cancel(ctx, j.ID, ""))

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Waiting)
	assert.Equal(t, 1, stats.Delayed)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Zero(t, stats.Active)
	assert.Equal(t, 3, stats.Total)
}

func TestQueueSubscribe(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, &echoHandler{kind: "test.echo"})

	ch := q.Subscribe()
	defer q.Unsubscribe(ch)

	j, err := q.Enqueue(ctx, "test.echo", nil, 0)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, j.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected enqueue notification")
	}
}

func TestQueueCleanup(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, &echoHandler{kind: "test.echo"})

	j, err := q.Enqueue(ctx, "test.echo", nil, 0)
	require.NoError(t, err)
	j.Start()
	j.Complete(nil)
	j.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, q.Store().UpdateJob(j))

	removed, err := q.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRegistry(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		r := NewRegistry()
		h := &echoHandler{kind: "test.echo"}
		r.Register(h)

		assert.True(t, r.Has("test.echo"))
		assert.Same(t, Handler(h), r.Get("test.echo"))
		assert.Nil(t, r.Get("test.unknown"))
		assert.Equal(t, []string{"test.echo"}, r.Kinds())
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&echoHandler{kind: "test.echo"})
		assert.Panics(t, func() {
			r.Register(&echoHandler{kind: "test.echo"})
		})
	})
}
