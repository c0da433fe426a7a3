// Package lazy provides an initialize-once barrier for process-scoped
// resources such as the embedding model and the vector index handle.
//
// Unlike sync.Once, a failed initialization is not remembered: the next
// caller runs the constructor again. Concurrent callers block on the same
// attempt instead of racing to build duplicate resources.
package lazy

import (
	"context"
	"sync"
)

// Value holds a T built on first use. sem admits one builder at a time;
// mu guards the built value so readers never wait on a build.
type Value[T any] struct {
	sem   chan struct{}
	build func(ctx context.Context) (T, error)

	mu    sync.RWMutex
	val   T
	ready bool
}

// New returns a Value that calls build on the first successful Get.
func New[T any](build func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{sem: make(chan struct{}, 1), build: build}
}

// Get returns the resource, building it if needed. Callers that arrive
// while a build is in flight wait for it; if ctx is cancelled first they
// return ctx.Err() and leave the build running for the others.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	if val, ok := v.Peek(); ok {
		return val, nil
	}

	var zero T
	select {
	case v.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { <-v.sem }()

	if val, ok := v.Peek(); ok {
		return val, nil
	}
	val, err := v.build(ctx)
	if err != nil {
		return zero, err
	}

	v.mu.Lock()
	v.val, v.ready = val, true
	v.mu.Unlock()
	return val, nil
}

// Ready reports whether the resource has been built.
func (v *Value[T]) Ready() bool {
	_, ok := v.Peek()
	return ok
}

// Peek returns the resource without building it.
func (v *Value[T]) Peek() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val, v.ready
}
