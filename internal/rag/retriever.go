package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/lazy"
	"github.com/54b3r/casebot-go/internal/logging"
)

const (
	// DefaultTopK is the number of neighbours requested when none is configured.
	DefaultTopK = 30
	// DefaultMaxTopK caps requests to what the case index serves comfortably.
	DefaultMaxTopK = 40
)

// DefaultRetriever implements Retriever by combining an Embedder and an Index.
// It embeds the question at retrieval time and delegates the similarity search.
type DefaultRetriever struct {
	// embedder converts question text to a dense vector.
	embedder Embedder

	// index performs the nearest-neighbour search.
	index Index

	// defaultTopK is used when the caller passes 0.
	defaultTopK int

	// maxTopK caps any requested topK.
	maxTopK int

	// dims caches the index dimension after the first successful lookup.
	dims *lazy.Value[int]
}

// NewRetriever constructs a DefaultRetriever. defaultTopK and maxTopK fall
// back to DefaultTopK and DefaultMaxTopK when non-positive.
func NewRetriever(embedder Embedder, index Index, defaultTopK, maxTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, apperr.New(apperr.KindConfiguration, "rag.NewRetriever", errors.New("embedder must not be nil"))
	}
	if index == nil {
		return nil, apperr.New(apperr.KindConfiguration, "rag.NewRetriever", errors.New("index must not be nil"))
	}
	if maxTopK <= 0 {
		maxTopK = DefaultMaxTopK
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	defaultTopK = min(defaultTopK, maxTopK)

	return &DefaultRetriever{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		dims:        lazy.New(index.Dimension),
	}, nil
}

// TopK resolves a requested topK: non-positive selects the default and
// anything above the maximum is clamped.
func (r *DefaultRetriever) TopK(requested int) int {
	if requested <= 0 {
		return r.defaultTopK
	}
	return min(requested, r.maxTopK)
}

// Retrieve embeds the question and returns at most topK ranked records.
// An index with no matching records yields an empty slice and a nil error.
func (r *DefaultRetriever) Retrieve(ctx context.Context, question string, topK int) ([]Record, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "rag.Retrieve", errors.New("question is empty"))
	}
	topK = r.TopK(topK)
	log := logging.FromContext(ctx)

	start := time.Now()
	vec, err := r.embed(ctx, question)
	if err != nil {
		return nil, err
	}
	if err := r.checkDimension(ctx, len(vec)); err != nil {
		return nil, err
	}

	records, err := r.index.Query(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	if len(records) > topK {
		records = records[:topK]
	}

	log.Debug("rag: retrieved records",
		slog.String("index", r.index.Name()),
		slog.Int("top_k", topK),
		slog.Int("records", len(records)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return records, nil
}

// Check embeds a sample text and verifies its length matches the index
// dimension. Used at startup so a mismatch surfaces before the first query.
func (r *DefaultRetriever) Check(ctx context.Context) error {
	vec, err := r.embed(ctx, "dimension check")
	if err != nil {
		return err
	}
	return r.checkDimension(ctx, len(vec))
}

// embed returns the single vector for text.
func (r *DefaultRetriever) embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.New(apperr.KindModelUnavailable, "rag.embed", err)
		}
		return nil, fmt.Errorf("rag: embedding question failed: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, apperr.New(apperr.KindModelUnavailable, "rag.embed", errors.New("embedder returned empty result"))
	}
	return embeddings[0], nil
}

// checkDimension compares a vector length against the index dimension.
// An index that cannot report its dimension is trusted.
func (r *DefaultRetriever) checkDimension(ctx context.Context, got int) error {
	want, err := r.dims.Get(ctx)
	if err != nil {
		return fmt.Errorf("rag: reading index dimension: %w", err)
	}
	if want > 0 && got != want {
		return apperr.Errorf(apperr.KindConfiguration, "rag.checkDimension",
			"embedding has %d dimensions but index %s expects %d; check EMBEDDING_MODEL", got, r.index.Name(), want)
	}
	return nil
}

// LazyIndex defers connecting to an index until first use. A failed
// connection is retried on the next call.
type LazyIndex struct {
	name string
	v    *lazy.Value[Index]
}

// NewLazyIndex returns an Index that calls build on first use.
func NewLazyIndex(name string, build func(ctx context.Context) (Index, error)) *LazyIndex {
	return &LazyIndex{name: name, v: lazy.New(build)}
}

// Get returns the connected index, connecting if needed.
func (l *LazyIndex) Get(ctx context.Context) (Index, error) {
	return l.v.Get(ctx)
}

// Query implements Index.
func (l *LazyIndex) Query(ctx context.Context, vec []float32, topK int) ([]Record, error) {
	idx, err := l.v.Get(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Query(ctx, vec, topK)
}

// Dimension implements Index.
func (l *LazyIndex) Dimension(ctx context.Context) (int, error) {
	idx, err := l.v.Get(ctx)
	if err != nil {
		return 0, err
	}
	return idx.Dimension(ctx)
}

// Name implements Index.
func (l *LazyIndex) Name() string { return l.name }

// Close closes the index if it was ever connected.
func (l *LazyIndex) Close() error {
	if idx, ok := l.v.Peek(); ok {
		return idx.Close()
	}
	return nil
}
