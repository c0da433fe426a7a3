package server

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/casebot-go/internal/generation"
	"github.com/54b3r/casebot-go/internal/rag"
)

// GenerationPinger checks the generation backend without spending tokens.
// Self-hosted backends answer a cheap GET; hosted clients report healthy once
// constructed, since a real call would consume quota.
type GenerationPinger struct {
	client generation.Client
}

// NewGenerationPinger constructs a GenerationPinger for c.
func NewGenerationPinger(c generation.Client) *GenerationPinger {
	return &GenerationPinger{client: c}
}

// Name returns the backend label used in readiness responses.
func (p *GenerationPinger) Name() string { return "generation:" + p.client.Backend() }

// Ping checks the generation backend.
func (p *GenerationPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// EmbedderPinger reports whether the embedding model can be loaded. The
// first check loads it, which also warms the model ahead of the first query.
type EmbedderPinger struct {
	load func(ctx context.Context) error
}

// NewEmbedderPinger constructs an EmbedderPinger around a model loader such
// as (*embedder.Lazy).Load.
func NewEmbedderPinger(load func(ctx context.Context) error) *EmbedderPinger {
	return &EmbedderPinger{load: load}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping loads the model if needed.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	if err := p.load(ctx); err != nil {
		return fmt.Errorf("model load failed: %w", err)
	}
	return nil
}

// IndexPinger checks a lazily connected index. Connecting is part of the
// check; once connected it dispatches to the backend's native health check.
type IndexPinger struct {
	index *rag.LazyIndex
}

// NewIndexPinger constructs an IndexPinger for idx.
func NewIndexPinger(idx *rag.LazyIndex) *IndexPinger {
	return &IndexPinger{index: idx}
}

// Name returns the index label used in readiness responses.
func (p *IndexPinger) Name() string { return p.index.Name() }

// Ping connects if needed and checks the backend.
func (p *IndexPinger) Ping(ctx context.Context) error {
	idx, err := p.index.Get(ctx)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	switch backend := idx.(type) {
	case *rag.QdrantIndex:
		return NewQdrantPinger(backend.Client()).Ping(ctx)
	case *rag.PgvectorIndex:
		return NewSQLPinger("pgvector", backend.DB()).Ping(ctx)
	default:
		if _, err := idx.Dimension(ctx); err != nil {
			return fmt.Errorf("dimension check failed: %w", err)
		}
		return nil
	}
}

// QdrantPinger checks a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to check.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// SQLPinger checks a database/sql pool, used for the pgvector index.
type SQLPinger struct {
	name string
	db   *sql.DB
}

// NewSQLPinger constructs a SQLPinger labelled name.
func NewSQLPinger(name string, db *sql.DB) *SQLPinger {
	return &SQLPinger{name: name, db: db}
}

// Name returns the dependency label used in readiness responses.
func (p *SQLPinger) Name() string { return p.name }

// Ping calls db.PingContext.
func (p *SQLPinger) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
