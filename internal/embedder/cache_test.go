package embedder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder returns a vector derived from the text and counts calls.
type countingEmbedder struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestCachedEmbedder_HitsAndCopies(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	m := NewMetrics(prometheus.NewRegistry())
	emb := NewCachedEmbedder(inner, 8, time.Minute, m)

	first, err := emb.Embed(context.Background(), []string{"excessive force"})
	require.NoError(t, err)
	first[0][0] = -1 // caller mutation must not leak into the cache

	second, err := emb.Embed(context.Background(), []string{"excessive force"})
	require.NoError(t, err)

	assert.Equal(t, []float32{15, 1}, second[0])
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheTotal.WithLabelValues("miss")))
}

func TestCachedEmbedder_MixedBatchKeepsOrder(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	emb := NewCachedEmbedder(inner, 8, time.Minute, nil)

	_, err := emb.Embed(context.Background(), []string{"bb"})
	require.NoError(t, err)

	got, err := emb.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}, {3, 1}}, got)
}

func TestCachedEmbedder_CoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{delay: 20 * time.Millisecond}
	emb := NewCachedEmbedder(inner, 8, time.Minute, nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := emb.Embed(context.Background(), []string{"same question"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{err: errors.New("boom")}
	emb := NewCachedEmbedder(inner, 8, time.Minute, nil)

	_, err := emb.Embed(context.Background(), []string{"q"})
	require.Error(t, err)
	_, err = emb.Embed(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestNewCachedEmbedder_DisabledReturnsInner(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	assert.Same(t, inner, NewCachedEmbedder(inner, 0, time.Minute, nil))
}

// ctxEmbedder honours cancellation of the context it is handed.
type ctxEmbedder struct {
	calls atomic.Int32
	delay time.Duration
}

func (c *ctxEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 1}
	}
	return out, nil
}

func TestCachedEmbedder_CancelledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	inner := &ctxEmbedder{delay: 200 * time.Millisecond}
	emb := NewCachedEmbedder(inner, 8, time.Minute, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := emb.Embed(first, []string{"use of force"})
		firstErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	secondErr := make(chan error, 1)
	go func() {
		_, err := emb.Embed(context.Background(), []string{"use of force"})
		secondErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	assert.NoError(t, <-secondErr)
	assert.Equal(t, int32(1), inner.calls.Load())

	// The shared call completed and populated the cache.
	got, err := emb.Embed(context.Background(), []string{"use of force"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, got[0])
	assert.Equal(t, int32(1), inner.calls.Load())
}
