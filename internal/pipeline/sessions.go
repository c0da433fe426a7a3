package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is the cancellation cause of a query replaced by a newer one
// from the same session.
var ErrSuperseded = errors.New("pipeline: superseded by a newer question")

// Sessions enforces "last submitted wins" per session: beginning a query
// cancels the one still running for the same session id.
type Sessions struct {
	mu     sync.Mutex
	seq    uint64
	active map[string]activeQuery
}

type activeQuery struct {
	seq    uint64
	cancel context.CancelCauseFunc
}

// NewSessions returns an empty registry.
func NewSessions() *Sessions {
	return &Sessions{active: make(map[string]activeQuery)}
}

// Begin derives a context for a new query in session id and cancels the
// previous query of that session with ErrSuperseded. The returned end func
// must be called when the query finishes. An empty id is never superseded.
func (s *Sessions) Begin(parent context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	if id == "" {
		return ctx, func() { cancel(nil) }
	}

	s.mu.Lock()
	s.seq++
	mine := s.seq
	if prev, ok := s.active[id]; ok {
		prev.cancel(ErrSuperseded)
	}
	s.active[id] = activeQuery{seq: mine, cancel: cancel}
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if cur, ok := s.active[id]; ok && cur.seq == mine {
			delete(s.active, id)
		}
		s.mu.Unlock()
		cancel(nil)
	}
}

// Active returns the number of sessions with a query in flight.
func (s *Sessions) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
