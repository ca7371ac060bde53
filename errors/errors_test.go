package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestIs(t *testing.T) {
	err1 := New("error 1")
	err2 := New("error 2")
	wrapped := Wrap(err1, "wrapped")

	assert.True(t, Is(wrapped, err1))
	assert.False(t, Is(wrapped, err2))
	assert.False(t, Is(nil, err1))
}

type payloadError struct {
	field string
}

func (e *payloadError) Error() string {
	return "bad field: " + e.field
}

func TestAs(t *testing.T) {
	original := &payloadError{field: "invoiceId"}
	wrapped := Wrap(original, "validation")

	var target *payloadError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "invoiceId", target.field)
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("other")))
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(Wrap(ErrNotFound, "invoice lookup")))
	assert.True(t, IsNotFoundError(NewNotFoundError("invoice %s", "abc")))
}

func TestIsInvalidPayloadError(t *testing.T) {
	assert.False(t, IsInvalidPayloadError(nil))
	assert.False(t, IsInvalidPayloadError(ErrNotFound))
	assert.True(t, IsInvalidPayloadError(Wrap(ErrInvalidPayload, "missing invoiceId")))
}

func TestIsInvalidStateError(t *testing.T) {
	assert.False(t, IsInvalidStateError(nil))
	assert.True(t, IsInvalidStateError(Wrapf(ErrInvalidState, "job %s is active", "j1")))
}

func TestWrapNotFound(t *testing.T) {
	base := New("no such row")
	err := WrapNotFound(base, "loading invoice")

	assert.True(t, Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "loading invoice")
	assert.Contains(t, err.Error(), "no such row")
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("unknown kind %q", "bogus")

	assert.True(t, Is(err, ErrInvalidRequest))
	assert.Contains(t, err.Error(), `unknown kind "bogus"`)
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func TestErrorChaining(t *testing.T) {
	base := New("base error")

	err := Wrap(base, "layer 1")
	err = WithHint(err, "helpful hint")
	err = WithDetail(err, "detailed info")
	err = Wrap(err, "layer 2")

	assert.True(t, Is(err, base))
	assert.Contains(t, err.Error(), "layer 2")
	assert.Contains(t, err.Error(), "layer 1")
	assert.Contains(t, err.Error(), "base error")

	hints := GetAllHints(err)
	assert.Contains(t, hints, "helpful hint")

	details := GetAllDetails(err)
	assert.Contains(t, details, "detailed info")
}

func ExampleWrap() {
	baseErr := New("connection failed")
	err := Wrap(baseErr, "failed to open database")
	fmt.Println(err)
	// Output: failed to open database: connection failed
}
