package embedder

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/rag"
)

// Metrics holds the embedding Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// requestsTotal counts backend embed calls by provider and outcome.
	requestsTotal *prometheus.CounterVec
	// durationSeconds records backend embed latency by provider.
	durationSeconds *prometheus.HistogramVec
	// cacheTotal counts cache lookups by result (hit, miss).
	cacheTotal *prometheus.CounterVec
}

// NewMetrics registers the embedding metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casebot",
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding backend calls, partitioned by provider and outcome.",
		}, []string{"provider", "outcome"}),
		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "casebot",
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Latency of embedding backend calls.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		cacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casebot",
			Subsystem: "embedding",
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups, partitioned by result.",
		}, []string{"result"}),
	}
}

// cacheResult records one cache lookup.
func (m *Metrics) cacheResult(result string) {
	if m == nil {
		return
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}

// instrumented records latency and outcome of every backend call.
type instrumented struct {
	inner    rag.Embedder
	provider string
	metrics  *Metrics
}

// Instrument wraps inner with request metrics. A nil m returns inner unchanged.
func Instrument(inner rag.Embedder, provider string, m *Metrics) rag.Embedder {
	if m == nil {
		return inner
	}
	return &instrumented{inner: inner, provider: provider, metrics: m}
}

// Embed implements rag.Embedder.
func (e *instrumented) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := e.inner.Embed(ctx, texts)
	e.metrics.durationSeconds.WithLabelValues(e.provider).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	e.metrics.requestsTotal.WithLabelValues(e.provider, outcome).Inc()
	return vecs, err
}
