package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopDefault(t *testing.T) {
	// The package-level logger must be usable before Initialize is called.
	require.NotNil(t, Logger)
	assert.NotPanics(t, func() {
		Info("before init")
		Errorw("before init", FieldJobID, "j1")
	})
}

func TestInitialize(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		err := Initialize(false)
		require.NoError(t, err)
		assert.False(t, JSONOutput)
		assert.NotNil(t, Logger)
	})

	t.Run("json output", func(t *testing.T) {
		err := Initialize(true)
		require.NoError(t, err)
		assert.True(t, JSONOutput)
		assert.NotNil(t, Logger)
	})
}

func TestComponentLogger(t *testing.T) {
	require.NoError(t, Initialize(false))

	l := ComponentLogger("job.worker")
	require.NotNil(t, l)
	assert.NotPanics(t, func() {
		l.Infow("component message", FieldCount, 1)
	})
}

func TestChildLogger(t *testing.T) {
	require.NoError(t, Initialize(false))

	child := ChildLogger(Logger, FieldJobID, "j1", FieldAttempt, 2)
	require.NotNil(t, child)
	assert.NotPanics(t, func() {
		child.Info("child message")
	})
}
