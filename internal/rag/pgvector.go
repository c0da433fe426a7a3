package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/logging"
)

// PgvectorConfig holds connection parameters for a Postgres table of case records.
//
// The table is expected to look like:
//
//	CREATE TABLE police_cases (
//	    id        text PRIMARY KEY,
//	    embedding vector(384) NOT NULL,
//	    metadata  jsonb
//	);
type PgvectorConfig struct {
	// DSN is the lib/pq connection string.
	DSN string

	// Table is the table name, optionally schema-qualified ("public.police_cases").
	Table string
}

// tableNamePattern accepts plain or schema-qualified identifiers.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PgvectorIndex implements Index backed by Postgres with the pgvector extension.
type PgvectorIndex struct {
	db    *sql.DB
	table string
	// quoted is the table identifier ready for interpolation.
	quoted string
}

// NewPgvectorIndex opens a connection pool and pings the database.
func NewPgvectorIndex(ctx context.Context, cfg *PgvectorConfig) (*PgvectorIndex, error) {
	if cfg.DSN == "" {
		return nil, apperr.New(apperr.KindConfiguration, "rag.pgvector", errors.New("PGVECTOR_DSN is required"))
	}
	quoted, err := quoteTable(cfg.Table)
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "rag.pgvector", err)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "rag.pgvector", fmt.Errorf("invalid DSN: %w", err))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, indexError("rag.pgvector.connect", err)
	}
	return newPgvectorIndex(db, cfg.Table, quoted), nil
}

// newPgvectorIndex wraps an existing pool; used by tests.
func newPgvectorIndex(db *sql.DB, table, quoted string) *PgvectorIndex {
	return &PgvectorIndex{db: db, table: table, quoted: quoted}
}

// quoteTable validates and quotes a possibly schema-qualified table name.
func quoteTable(name string) (string, error) {
	if !tableNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q (INDEX_NAME)", name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return pq.QuoteIdentifier(name[:i]) + "." + pq.QuoteIdentifier(name[i+1:]), nil
		}
	}
	return pq.QuoteIdentifier(name), nil
}

// Name returns the table name.
func (s *PgvectorIndex) Name() string { return "pgvector:" + s.table }

// DB exposes the pool for health checks.
func (s *PgvectorIndex) DB() *sql.DB { return s.db }

// Query ranks rows by cosine distance. Score is reported as cosine similarity.
func (s *PgvectorIndex) Query(ctx context.Context, vec []float32, topK int) ([]Record, error) {
	if topK <= 0 {
		return nil, apperr.Errorf(apperr.KindInvalidInput, "rag.pgvector.Query", "topK must be positive, got %d", topK)
	}
	query := `
		SELECT id::text, 1 - (embedding <=> $1) AS score, metadata
		FROM ` + s.quoted + `
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, indexError("rag.pgvector.Query", err)
	}
	defer rows.Close()

	log := logging.FromContext(ctx)
	records := make([]Record, 0, topK)
	for rows.Next() {
		var (
			id    string
			score float64
			raw   []byte
		)
		if err := rows.Scan(&id, &score, &raw); err != nil {
			return nil, indexError("rag.pgvector.Query", fmt.Errorf("scan: %w", err))
		}
		md, err := decodeJSONMetadata(id, raw)
		if err != nil {
			log.Warn("rag: skipping record", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		records = append(records, Record{ID: id, Score: float32(score), Metadata: md})
		if len(records) == topK {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, indexError("rag.pgvector.Query", err)
	}
	return records, nil
}

// Dimension reads the declared size of the embedding column.
// For the vector type, atttypmod holds the dimension.
func (s *PgvectorIndex) Dimension(ctx context.Context) (int, error) {
	const query = `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'
	`
	var dims int
	if err := s.db.QueryRowContext(ctx, query, s.table).Scan(&dims); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperr.Errorf(apperr.KindConfiguration, "rag.pgvector.Dimension", "table %s has no embedding column", s.table)
		}
		return 0, indexError("rag.pgvector.Dimension", err)
	}
	if dims < 0 {
		return 0, nil
	}
	return dims, nil
}

// Close closes the connection pool.
func (s *PgvectorIndex) Close() error {
	return s.db.Close()
}

// decodeJSONMetadata unmarshals a jsonb column into CaseMetadata.
func decodeJSONMetadata(id string, raw []byte) (CaseMetadata, error) {
	if len(raw) == 0 {
		return DecodeMetadata(id, nil)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return CaseMetadata{}, fmt.Errorf("%w: record %q: %v", ErrMalformedRecord, id, err)
	}
	return DecodeMetadata(id, payload)
}
