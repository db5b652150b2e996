package reject

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectsDetail(t *testing.T) {
	e := New(GeofenceViolation, "distance", 201, "allowed", 200, 42, "ignored")
	require.Equal(t, GeofenceViolation, e.Reason)
	assert.Equal(t, map[string]any{"distance": 201, "allowed": 200}, e.Detail)
	assert.Equal(t, "geofence_violation (allowed=200, distance=201)", e.Error())
}

func TestAsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("scan: %w", New(DuplicateScan))
	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, DuplicateScan, e.Reason)
	assert.True(t, errors.Is(err, New(DuplicateScan)))
	assert.False(t, errors.Is(err, New(NoEntitlement)))
}

func TestRetryableOnlyForStorage(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable(cause)
	assert.True(t, Retryable(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, Retryable(New(ReplayDetected)))
	assert.False(t, Retryable(cause))
	assert.Equal(t, Reason(""), ReasonOf(cause))
}
