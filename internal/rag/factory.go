package rag

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/casebot-go/internal/apperr"
)

// Index backends.
const (
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
)

// defaultIndexName is the collection or table used when INDEX_NAME is unset.
const defaultIndexName = "police-cases"

// IndexSettings is the resolved index configuration.
type IndexSettings struct {
	Backend string
	Name    string
	TopK    int
	MaxTopK int

	Qdrant   QdrantConfig
	Pgvector PgvectorConfig
}

// SettingsFromEnv reads INDEX_*, RAG_*, QDRANT_* and PGVECTOR_DSN.
func SettingsFromEnv() (IndexSettings, error) {
	s := IndexSettings{
		Backend: envOr("INDEX_BACKEND", BackendQdrant),
		Name:    envOr("INDEX_NAME", defaultIndexName),
	}

	var err error
	if s.TopK, err = envInt("RAG_TOP_K", DefaultTopK); err != nil {
		return s, err
	}
	if s.MaxTopK, err = envInt("RAG_MAX_TOP_K", DefaultMaxTopK); err != nil {
		return s, err
	}

	switch s.Backend {
	case BackendQdrant:
		port, err := envInt("QDRANT_PORT", 6334)
		if err != nil {
			return s, err
		}
		s.Qdrant = QdrantConfig{
			Host:       envOr("QDRANT_HOST", "localhost"),
			Port:       port,
			Collection: s.Name,
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		}
	case BackendPgvector:
		s.Pgvector = PgvectorConfig{DSN: os.Getenv("PGVECTOR_DSN"), Table: s.Name}
		if s.Pgvector.DSN == "" {
			return s, apperr.Errorf(apperr.KindConfiguration, "rag.SettingsFromEnv", "INDEX_BACKEND=pgvector requires PGVECTOR_DSN")
		}
		if _, err := quoteTable(s.Name); err != nil {
			return s, apperr.New(apperr.KindConfiguration, "rag.SettingsFromEnv", err)
		}
	default:
		return s, apperr.Errorf(apperr.KindConfiguration, "rag.SettingsFromEnv",
			"unknown INDEX_BACKEND %q (valid: qdrant, pgvector)", s.Backend)
	}
	return s, nil
}

// NewLazyIndexFromSettings returns an index that connects on first use.
func NewLazyIndexFromSettings(s IndexSettings) *LazyIndex {
	return NewLazyIndex(s.Backend+":"+s.Name, func(ctx context.Context) (Index, error) {
		switch s.Backend {
		case BackendPgvector:
			cfg := s.Pgvector
			return NewPgvectorIndex(ctx, &cfg)
		default:
			cfg := s.Qdrant
			return NewQdrantIndex(ctx, &cfg)
		}
	})
}

// envOr returns the named env var or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt parses the named env var as an int; unset yields fallback.
func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.New(apperr.KindConfiguration, "rag.SettingsFromEnv", fmt.Errorf("%s=%q is not an integer", key, v))
	}
	return n, nil
}
