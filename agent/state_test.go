package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []State{StateRunning, StateComplete, StateExhausted, StateFailed}
	for _, from := range all {
		for _, to := range all {
			want := from == StateRunning && to != StateRunning
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestState_IsTerminal(t *testing.T) {
	assert.False(t, StateRunning.IsTerminal())
	assert.True(t, StateComplete.IsTerminal())
	assert.True(t, StateExhausted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
}

func TestRunTransition(t *testing.T) {
	r := &run{state: StateRunning}
	assert.NoError(t, r.transition(StateComplete))
	err := r.transition(StateFailed)
	assert.EqualError(t, err, "invalid state transition: COMPLETE -> FAILED")
	assert.Equal(t, StateComplete, r.state)
}
