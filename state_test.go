package labmod

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivationStateString(t *testing.T) {
	assert.Equal(t, "unloaded", StateUnloaded.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "deactivating", StateDeactivating.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", ActivationState(99).String())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(StateUnloaded, StateLoading))
	assert.True(t, canTransition(StateLoading, StateActive))
	assert.True(t, canTransition(StateActive, StateDeactivating))
	assert.True(t, canTransition(StateDeactivating, StateUnloaded))

	// Error is reachable from anywhere, left only toward Unloaded.
	assert.True(t, canTransition(StateLoading, StateError))
	assert.True(t, canTransition(StateActive, StateError))
	assert.True(t, canTransition(StateError, StateUnloaded))
	assert.False(t, canTransition(StateError, StateActive))
	assert.False(t, canTransition(StateError, StateLoading))

	assert.False(t, canTransition(StateUnloaded, StateActive))
	assert.False(t, canTransition(StateActive, StateUnloaded))
	assert.False(t, canTransition(StateLoading, StateDeactivating))
}
