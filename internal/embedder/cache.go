package embedder

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/54b3r/casebot-go/internal/rag"
)

// Cache defaults.
const (
	DefaultCacheSize = 512
	DefaultCacheTTL  = time.Hour
)

// sharedEmbedTimeout bounds a coalesced backend call. The call runs detached
// from every caller's context so one caller giving up does not fail the rest.
const sharedEmbedTimeout = 30 * time.Second

// CachedEmbedder decorates a rag.Embedder with an in-memory expirable LRU
// keyed by the exact text. Concurrent misses for the same text share one
// backend call. Vectors handed to callers are copies, so a caller mutating
// its result cannot corrupt the cache.
type CachedEmbedder struct {
	inner   rag.Embedder
	cache   *expirable.LRU[string, []float32]
	group   singleflight.Group
	metrics *Metrics
}

// NewCachedEmbedder wraps inner. A size <= 0 returns inner unchanged.
func NewCachedEmbedder(inner rag.Embedder, size int, ttl time.Duration, m *Metrics) rag.Embedder {
	if size <= 0 {
		return inner
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedEmbedder{
		inner:   inner,
		cache:   expirable.NewLRU[string, []float32](size, nil, ttl),
		metrics: m,
	}
}

// Embed returns cached vectors where present and embeds the rest in one
// batch per distinct missing text.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = slices.Clone(v)
			c.metrics.cacheResult("hit")
			continue
		}
		missing = append(missing, i)
		c.metrics.cacheResult("miss")
	}

	for _, i := range missing {
		text := texts[i]
		ch := c.group.DoChan(text, func() (any, error) {
			if v, ok := c.cache.Get(text); ok {
				return v, nil
			}
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedEmbedTimeout)
			defer cancel()
			vecs, err := c.inner.Embed(sctx, []string{text})
			if err != nil {
				return nil, err
			}
			c.cache.Add(text, vecs[0])
			return vecs[0], nil
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			out[i] = slices.Clone(res.Val.([]float32))
		}
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
