package apperr

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("pipeline: retrieve: %w", New(KindIndexUnavailable, "rag.qdrant.Query", io.ErrUnexpectedEOF))

	if !errors.Is(err, ErrIndexUnavailable) {
		t.Error("expected errors.Is(err, ErrIndexUnavailable)")
	}
	if errors.Is(err, ErrModelUnavailable) {
		t.Error("did not expect match against ErrModelUnavailable")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected cause to stay reachable")
	}
}

func TestError_IsWithOp(t *testing.T) {
	t.Parallel()

	err := New(KindTimeout, "generation.selfhosted", nil)
	if !errors.Is(err, &Error{Kind: KindTimeout, Op: "generation.selfhosted"}) {
		t.Error("expected match on kind and op")
	}
	if errors.Is(err, &Error{Kind: KindTimeout, Op: "generation.hosted"}) {
		t.Error("did not expect match on different op")
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"untagged", errors.New("boom"), KindUnknown},
		{"tagged", New(KindRateLimited, "x", nil), KindRateLimited},
		{"wrapped", fmt.Errorf("outer: %w", New(KindIncompleteStream, "x", nil)), KindIncompleteStream},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRetryAfterOf(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrap: %w", RateLimited("gen", 7*time.Second, nil))
	if got := RetryAfterOf(err); got != 7*time.Second {
		t.Errorf("RetryAfterOf: got %v, want 7s", got)
	}
	if got := RetryAfterOf(errors.New("plain")); got != 0 {
		t.Errorf("RetryAfterOf plain: got %v, want 0", got)
	}
}

func TestMessage_DistinctPerKind(t *testing.T) {
	t.Parallel()

	kinds := []Kind{
		KindConfiguration, KindModelUnavailable, KindIndexUnavailable, KindRateLimited,
		KindTransientBackend, KindTimeout, KindIncompleteStream, KindBackend,
		KindCanceled, KindInvalidInput,
	}
	seen := make(map[string]Kind)
	for _, k := range kinds {
		msg := Message(New(k, "op", nil))
		if msg == "" {
			t.Errorf("Message(%s) is empty", k)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("Message(%s) duplicates Message(%s): %q", k, prev, msg)
		}
		seen[msg] = k
	}
	if Message(nil) != "" {
		t.Error("Message(nil) should be empty")
	}
}

func TestError_String(t *testing.T) {
	t.Parallel()

	got := New(KindBackend, "generation.hosted", errors.New("status 400")).Error()
	want := "generation.hosted: backend: status 400"
	if got != want {
		t.Errorf("Error(): got %q, want %q", got, want)
	}
}
