package job

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbtest "github.com/ldg-erp/duework/internal/testing"
)

func TestQueueRecordsEnqueues(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&echoHandler{kind: "test.echo"})

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	q := NewQueue(dbtest.CreateTestDB(t), registry, Options{}, metrics)

	ctx := context.Background()
	_, err := q.Enqueue(ctx, "test.echo", nil, 0)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "test.echo", nil, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.enqueued.WithLabelValues("test.echo")))

	t.Run("rejected jobs are not counted", func(t *testing.T) {
		_, err := q.Enqueue(ctx, "test.unknown", nil, 0)
		require.Error(t, err)
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.enqueued.WithLabelValues("test.unknown")))
	})
}

func TestStoreCollectorReportsDepth(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&echoHandler{kind: "test.echo"})
	q := NewQueue(dbtest.CreateTestDB(t), registry, Options{}, nil)

	ctx := context.Background()
	_, err := q.Enqueue(ctx, "test.echo", nil, 0)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "test.echo", nil, time.Hour)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "test.echo", nil, time.Hour)
	require.NoError(t, err)

	collector := NewStoreCollector(q.Store())
	expected := `
		# HELP duework_jobs_queued Jobs in the store, by status.
		# TYPE duework_jobs_queued gauge
		duework_jobs_queued{status="delayed"} 2
		duework_jobs_queued{status="waiting"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(collector,
		strings.NewReader(expected), "duework_jobs_queued"))
}
