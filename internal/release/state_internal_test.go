package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTraceRejectsSkippedStates(testInstance *testing.T) {
	trace := newTransitionTrace()
	require.NoError(testInstance, trace.advance(StateCloned))

	var transitionError IllegalTransitionError
	require.ErrorAs(testInstance, trace.advance(StateTagged), &transitionError)
	require.Equal(testInstance, IllegalTransitionError{From: StateCloned, To: StateTagged}, transitionError)

	require.NoError(testInstance, trace.advance(StateAlreadyReleased))
	require.Error(testInstance, trace.advance(StateFailed))
	require.Equal(testInstance, []State{StateDiscovered, StateCloned, StateAlreadyReleased}, trace.snapshot())
}

func TestTransitionTraceFailsFromAnyActiveState(testInstance *testing.T) {
	for _, state := range []State{StateDiscovered, StateReleasing, StateTagged} {
		trace := &transitionTrace{states: []State{state}}
		require.NoError(testInstance, trace.advance(StateFailed))
		require.Equal(testInstance, StateFailed, trace.current())
		require.True(testInstance, trace.current().Terminal())
	}
}
