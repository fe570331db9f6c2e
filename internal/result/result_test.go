package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOkResult(t *testing.T) {
	r := Ok(42)
	assert.True(t, r.IsOk())
	v, ok := r.Value()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Nil(t, r.Error())
}

func TestErrResult(t *testing.T) {
	r := Err[int](KindValidation, "volume out of range")
	assert.False(t, r.IsOk())
	_, ok := r.Value()
	assert.False(t, ok)
	require.NotNil(t, r.Error())
	assert.Equal(t, KindValidation, r.Error().Kind)
	assert.Equal(t, "volume out of range", r.Error().Message)
}

func TestErrWrapCarriesCause(t *testing.T) {
	cause := errors.New("connection refused")
	r := ErrWrap[string](KindTransport, "snapcast dial failed", cause)
	require.NotNil(t, r.Error())
	assert.Equal(t, cause, r.Error().Cause)
	assert.ErrorIs(t, r.Error(), cause)
}

func TestUnwrapReturnsValueOnSuccess(t *testing.T) {
	r := Ok("zone-1")
	v, err := r.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "zone-1", v)
}

func TestUnwrapReturnsErrorOnFailure(t *testing.T) {
	r := Err[string](KindNotFound, "zone not found")
	_, err := r.Unwrap()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zone not found")
}

func TestAsCoreErrorExtractsFromChain(t *testing.T) {
	ce := New(KindConflict, "port in use")
	wrapped := errors.New("startup failed: " + ce.Error())
	_, ok := AsCoreError(wrapped)
	assert.False(t, ok) // plain fmt-wrapped string, not an errors.Wrap chain

	found, ok := AsCoreError(ce)
	assert.True(t, ok)
	assert.Equal(t, ce, found)
}

func TestCoreErrorMessageIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("eof")
	ce := Wrap(KindProtocol, "malformed frame", cause)
	assert.Contains(t, ce.Error(), "malformed frame")
	assert.Contains(t, ce.Error(), "eof")

	bare := New(KindInternal, "unreachable switch arm")
	assert.NotContains(t, bare.Error(), "<nil>")
}
