package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []State{StateIdle, StateSent, StateStreaming, StateCompleted, StateDone, StateFailed}
	legal := map[[2]State]bool{
		{StateIdle, StateSent}:        true,
		{StateSent, StateStreaming}:   true,
		{StateSent, StateCompleted}:   true,
		{StateSent, StateFailed}:      true,
		{StateStreaming, StateDone}:   true,
		{StateStreaming, StateFailed}: true,
		{StateCompleted, StateDone}:   true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]State{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateStreaming.Terminal())
	assert.False(t, StateCompleted.Terminal())
}

func TestResponseAdvance(t *testing.T) {
	t.Parallel()

	r := newResponse()
	r.advance(StateSent)
	r.advance(StateStreaming)
	r.advance(StateDone)

	assert.True(t, r.Done)
	assert.Equal(t, []State{StateIdle, StateSent, StateStreaming, StateDone}, r.Trace)

	assert.Panics(t, func() { r.advance(StateSent) })
	assert.Panics(t, func() { newResponse().advance(StateFailed) })
}
