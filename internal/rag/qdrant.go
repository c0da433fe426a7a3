package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/logging"
)

// QdrantConfig holds connection parameters for a Qdrant collection of case records.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection holding the case vectors.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index backed by a Qdrant collection.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex connects to Qdrant and verifies the collection exists. The
// index is read-only: a missing collection is an IndexUnavailable error,
// never an implicit create.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, apperr.New(apperr.KindConfiguration, "rag.qdrant", errors.New("collection name is required (INDEX_NAME)"))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, indexError("rag.qdrant.connect", fmt.Errorf("failed to create client: %w", err))
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, indexError("rag.qdrant.connect", fmt.Errorf("failed to check collection %q: %w", cfg.Collection, err))
	}
	if !exists {
		_ = client.Close()
		return nil, indexError("rag.qdrant.connect", fmt.Errorf("collection %q does not exist", cfg.Collection))
	}

	return &QdrantIndex{client: client, cfg: cfg}, nil
}

// Name returns the collection name.
func (s *QdrantIndex) Name() string { return "qdrant:" + s.cfg.Collection }

// Client exposes the gRPC client for health checks.
func (s *QdrantIndex) Client() *qdrant.Client { return s.client }

// Query performs a similarity search and returns at most topK decoded records.
func (s *QdrantIndex) Query(ctx context.Context, vec []float32, topK int) ([]Record, error) {
	if topK <= 0 {
		return nil, apperr.Errorf(apperr.KindInvalidInput, "rag.qdrant.Query", "topK must be positive, got %d", topK)
	}
	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, indexError("rag.qdrant.Query", err)
	}

	return recordsFromPoints(logging.FromContext(ctx), points, topK), nil
}

// Dimension reads the vector size from the collection's configuration.
func (s *QdrantIndex) Dimension(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return 0, indexError("rag.qdrant.Dimension", err)
	}
	vc := info.GetConfig().GetParams().GetVectorsConfig()
	if p := vc.GetParams(); p != nil {
		return int(p.GetSize()), nil
	}
	// Named vectors: only a single-vector layout has an unambiguous size.
	if m := vc.GetParamsMap().GetMap(); len(m) == 1 {
		for _, p := range m {
			return int(p.GetSize()), nil
		}
	}
	return 0, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// recordsFromPoints decodes scored points, skipping any whose payload cannot
// describe a case, and never returns more than topK records.
func recordsFromPoints(log *slog.Logger, points []*qdrant.ScoredPoint, topK int) []Record {
	records := make([]Record, 0, min(len(points), topK))
	for _, p := range points {
		if len(records) == topK {
			break
		}
		id := pointID(p.GetId())
		md, err := DecodeMetadata(id, payloadToMap(p.GetPayload()))
		if err != nil {
			log.Warn("rag: skipping record", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		records = append(records, Record{ID: id, Score: p.GetScore(), Metadata: md})
	}
	return records
}

// pointID renders either ID flavour as a string.
func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// payloadToMap converts a Qdrant payload into plain Go values.
func payloadToMap(p map[string]*qdrant.Value) map[string]any {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = valueToAny(v)
	}
	return out
}

// valueToAny converts a single Qdrant value.
func valueToAny(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]any, 0, len(vals))
		for _, e := range vals {
			out = append(out, valueToAny(e))
		}
		return out
	case *qdrant.Value_StructValue:
		return payloadToMap(k.StructValue.GetFields())
	default:
		return nil
	}
}
