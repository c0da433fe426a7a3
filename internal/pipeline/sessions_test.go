package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsLastSubmittedWins(t *testing.T) {
	t.Parallel()

	s := NewSessions()
	first, endFirst := s.Begin(context.Background(), "tab-1")
	second, endSecond := s.Begin(context.Background(), "tab-1")

	require.Error(t, first.Err(), "earlier query must be canceled")
	assert.ErrorIs(t, context.Cause(first), ErrSuperseded)
	assert.NoError(t, second.Err())
	assert.Equal(t, 1, s.Active())

	// The superseded query finishing must not unregister the newer one.
	endFirst()
	assert.Equal(t, 1, s.Active())
	assert.NoError(t, second.Err())

	endSecond()
	assert.Equal(t, 0, s.Active())
	assert.Error(t, second.Err())
}

func TestSessionsIndependent(t *testing.T) {
	t.Parallel()

	s := NewSessions()
	a, endA := s.Begin(context.Background(), "alice")
	defer endA()
	b, endB := s.Begin(context.Background(), "bob")
	defer endB()

	assert.NoError(t, a.Err())
	assert.NoError(t, b.Err())
	assert.Equal(t, 2, s.Active())
}

func TestSessionsAnonymous(t *testing.T) {
	t.Parallel()

	s := NewSessions()
	a, endA := s.Begin(context.Background(), "")
	b, endB := s.Begin(context.Background(), "")

	assert.NoError(t, a.Err())
	assert.NoError(t, b.Err())
	assert.Equal(t, 0, s.Active())

	endA()
	endB()
	assert.Error(t, a.Err())
}

func TestSessionsParentCancel(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	s := NewSessions()
	ctx, end := s.Begin(parent, "tab-1")
	defer end()

	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
}
