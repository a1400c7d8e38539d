package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		allowed bool
	}{
		{"installed to starting", StateInstalled, StateStarting, true},
		{"starting to active", StateStarting, StateActive, true},
		{"active to stopping", StateActive, StateStopping, true},
		{"stopping to stopped", StateStopping, StateStopped, true},
		{"installed to failed", StateInstalled, StateFailed, true},
		{"starting to failed", StateStarting, StateFailed, true},
		{"active to failed", StateActive, StateFailed, true},
		{"stopping to failed", StateStopping, StateFailed, true},
		{"installed skips starting", StateInstalled, StateActive, false},
		{"active cannot stop directly", StateActive, StateStopped, false},
		{"stopped is terminal", StateStopped, StateStarting, false},
		{"stopped cannot fail", StateStopped, StateFailed, false},
		{"failed is terminal", StateFailed, StateStarting, false},
		{"no self transition", StateActive, StateActive, false},
		{"no backwards transition", StateStopping, StateActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateStopped.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())

	for _, s := range []State{StateInstalled, StateStarting, StateActive, StateStopping} {
		assert.False(t, s.IsTerminal(), "state %s should not be terminal", s)
	}
}

func TestStateCanHandleRequests(t *testing.T) {
	assert.True(t, StateActive.CanHandleRequests())

	for _, s := range []State{StateInstalled, StateStarting, StateStopping, StateStopped, StateFailed, StateInvalid} {
		assert.False(t, s.CanHandleRequests(), "state %s should not handle requests", s)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "invalid", StateInvalid.String())
	assert.Equal(t, "state(42)", State(42).String())
}
