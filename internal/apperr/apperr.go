// Package apperr defines the error taxonomy shared by every casebot layer.
//
// Components return *Error values tagged with a [Kind] so the pipeline,
// the HTTP server and the CLI can map a failure to a single human-readable
// message (and a status code) without string matching. Wrapped errors keep
// their cause reachable through errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure.
type Kind string

const (
	// KindConfiguration means a required setting is missing or invalid.
	// Surfaced before any query runs.
	KindConfiguration Kind = "configuration"
	// KindModelUnavailable means the embedding model could not be loaded or reached.
	KindModelUnavailable Kind = "model_unavailable"
	// KindIndexUnavailable means the vector index could not be reached or queried.
	KindIndexUnavailable Kind = "index_unavailable"
	// KindRateLimited means a backend answered with HTTP 429.
	KindRateLimited Kind = "rate_limited"
	// KindTransientBackend means a retryable backend failure persisted past the retry budget.
	KindTransientBackend Kind = "transient_backend"
	// KindTimeout means the generation call exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindIncompleteStream means a streamed response ended without its terminal marker.
	KindIncompleteStream Kind = "incomplete_stream"
	// KindBackend is any other generation failure (non-retryable status, bad payload).
	KindBackend Kind = "backend"
	// KindCanceled means the caller abandoned the query.
	KindCanceled Kind = "canceled"
	// KindInvalidInput means the request itself was unusable (e.g. empty question).
	KindInvalidInput Kind = "invalid_input"
	// KindUnknown is returned by [KindOf] for errors outside the taxonomy.
	KindUnknown Kind = "unknown"
)

// Sentinels usable with errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrModelUnavailable = &Error{Kind: KindModelUnavailable}
	ErrIndexUnavailable = &Error{Kind: KindIndexUnavailable}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrTransientBackend = &Error{Kind: KindTransientBackend}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrIncompleteStream = &Error{Kind: KindIncompleteStream}
	ErrBackend          = &Error{Kind: KindBackend}
	ErrCanceled         = &Error{Kind: KindCanceled}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
)

// Error is a tagged failure.
type Error struct {
	// Kind is the taxonomy tag.
	Kind Kind
	// Op names the operation that failed, e.g. "embedder.ollama.Embed".
	Op string
	// Err is the underlying cause, may be nil.
	Err error
	// RetryAfter is the backend-suggested wait for KindRateLimited, zero if unknown.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind. A target with an
// Op or cause set must match those too, which keeps the bare sentinels broad.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Op != "" && t.Op != e.Op {
		return false
	}
	return t.Err == nil || errors.Is(e.Err, t.Err)
}

// New returns a tagged error wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf returns a tagged error with a formatted cause. %w verbs are honoured.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// RateLimited returns a KindRateLimited error carrying the backend's Retry-After hint.
func RateLimited(op string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimited, Op: op, Err: err, RetryAfter: retryAfter}
}

// KindOf returns the Kind of the outermost *Error in err's chain,
// or KindUnknown when err carries no tag. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RetryAfterOf returns the Retry-After hint attached to err, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Message returns the single human-readable sentence shown to an end user
// for err. Internal details stay in the logs.
func Message(err error) string {
	switch KindOf(err) {
	case "":
		return ""
	case KindConfiguration:
		return "The service is not configured correctly. Check the required API keys and endpoints."
	case KindModelUnavailable:
		return "The embedding model is unavailable right now. Please try again shortly."
	case KindIndexUnavailable:
		return "The case index could not be reached. Please try again shortly."
	case KindRateLimited:
		return "The language model is rate limited. Please wait a moment and try again."
	case KindTransientBackend:
		return "The language model backend kept failing. Please try again later."
	case KindTimeout:
		return "The language model took too long to answer."
	case KindIncompleteStream:
		return "The answer stream ended unexpectedly. The partial answer may be incomplete."
	case KindCanceled:
		return "The question was cancelled."
	case KindInvalidInput:
		return "Please enter a question."
	default:
		return "The language model failed to produce an answer."
	}
}
