// Package rag defines the retrieval half of casebot: embedding a question,
// querying a vector index of disciplinary case records, and decoding the
// ranked matches into [Record] values. Concrete index backends (Qdrant,
// pgvector) satisfy [Index] so the pipeline never depends on a specific store.
package rag

import (
	"context"
)

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines and must be
// deterministic for a fixed model.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is a read-only nearest-neighbour index over case records.
// Implementations must be safe to call from multiple goroutines.
type Index interface {
	// Query returns at most topK records ranked by descending similarity to
	// vec. Metadata is always requested; stored vectors never are. Zero
	// matches is an empty slice and a nil error. Connectivity failures are
	// reported as apperr.KindIndexUnavailable, never as an empty result.
	Query(ctx context.Context, vec []float32, topK int) ([]Record, error)

	// Dimension returns the vector size the index was built with, or 0 if
	// the backend cannot report it.
	Dimension(ctx context.Context) (int, error)

	// Name identifies the index for logs and readiness checks.
	Name() string

	// Close releases any resources held by the index.
	Close() error
}

// Retriever is the high-level interface used by the pipeline to fetch
// ranked case records for a question. It combines embedding and index query.
type Retriever interface {
	// Retrieve returns the topK most relevant records for question.
	// A topK of 0 selects the configured default.
	Retrieve(ctx context.Context, question string, topK int) ([]Record, error)
}
