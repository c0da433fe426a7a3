// Package generation sends an assembled prompt to a language model and
// returns the answer, either in one piece or as a stream of text chunks.
//
// Two kinds of backend implement [Client]: [SelfHosted] talks to an
// Ollama-compatible /api/generate endpoint (often through a tunnel) with
// retry on transient 5xx responses, and [Hosted] wraps an eino chat model
// (Gemini, OpenAI, Azure, Ark, Ollama). Every call walks the same state
// machine and records it in [Response.Trace].
package generation

import (
	"context"
	"fmt"
	"slices"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/prompt"
)

// State is the lifecycle stage of one generation call.
type State string

const (
	// StateIdle is the state before anything is sent.
	StateIdle State = "idle"
	// StateSent means the request is in flight, including retries.
	StateSent State = "sent"
	// StateStreaming means at least one chunk has been received.
	StateStreaming State = "streaming"
	// StateCompleted means a whole non-streamed answer was received.
	StateCompleted State = "completed"
	// StateDone is terminal success.
	StateDone State = "done"
	// StateFailed is terminal failure.
	StateFailed State = "failed"
)

// transitions lists the legal next states.
var transitions = map[State][]State{
	StateIdle:      {StateSent},
	StateSent:      {StateStreaming, StateCompleted, StateFailed},
	StateStreaming: {StateDone, StateFailed},
	StateCompleted: {StateDone},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Terminal reports whether s ends a call.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Request is one generation call.
type Request struct {
	// Prompt is the assembled prompt.
	Prompt prompt.Prompt

	// Raw, when set, is sent verbatim instead of the rendered Prompt.
	// Used by the generate command to smoke-test a backend.
	Raw string

	// Backend, when set, must match the client's backend name.
	Backend string
}

// text is the full prompt text for backends without a system role.
func (r Request) text() string {
	if r.Raw != "" {
		return r.Raw
	}
	return r.Prompt.Render()
}

// Response is the outcome of one call. It is returned on failure too, with
// any partial text received before the failure.
type Response struct {
	// Text is the answer, or the concatenation of chunks received so far.
	Text string
	// Done is true once the backend signalled completion.
	Done bool
	// State is the final state: StateDone or StateFailed.
	State State
	// Attempts counts HTTP attempts, including retries. Hosted calls make one.
	Attempts int
	// Trace lists every state visited, starting with StateIdle.
	Trace []State
}

func newResponse() *Response {
	return &Response{State: StateIdle, Trace: []State{StateIdle}}
}

// advance moves the response to the next state. An illegal move is a bug in
// this package.
func (r *Response) advance(to State) {
	if !CanTransition(r.State, to) {
		panic(fmt.Sprintf("generation: illegal transition %s -> %s", r.State, to))
	}
	r.State = to
	r.Trace = append(r.Trace, to)
	if to == StateDone {
		r.Done = true
	}
}

// fail moves the response to StateFailed, unless the call already ended,
// and returns err.
func (r *Response) fail(err error) error {
	if !r.State.Terminal() {
		r.advance(StateFailed)
	}
	return err
}

// ChunkFunc receives each streamed text fragment in order. Returning an
// error stops the stream.
type ChunkFunc func(text string) error

// Client generates answers from one backend. Implementations are safe for
// concurrent use.
type Client interface {
	// Generate returns the whole answer.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Stream delivers the answer incrementally through onChunk and returns the
	// assembled response once the backend signals completion.
	Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error)
	// Backend names the backend, e.g. "selfhosted" or "gemini".
	Backend() string
	// Ping checks the backend is reachable without generating.
	Ping(ctx context.Context) error
}

// checkBackend rejects a request addressed to another backend.
func checkBackend(op string, req Request, backend string) error {
	if req.Backend != "" && req.Backend != backend {
		return apperr.Errorf(apperr.KindConfiguration, op,
			"request for backend %q sent to %q", req.Backend, backend)
	}
	return nil
}
