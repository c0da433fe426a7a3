package generation

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/casebot-go/internal/apperr"
)

// Metrics holds the generation collectors. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
}

// NewMetrics registers the generation metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casebot",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Generation calls, partitioned by backend, mode and outcome.",
		}, []string{"backend", "mode", "outcome"}),
		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "casebot",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Latency of generation calls, retries included.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 1000},
		}, []string{"backend", "mode"}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casebot",
			Subsystem: "generation",
			Name:      "retries_total",
			Help:      "Retried generation attempts after a transient backend error.",
		}, []string{"backend"}),
	}
}

func (m *Metrics) retry(backend string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(backend).Inc()
}

func (m *Metrics) observe(backend, mode string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.durationSeconds.WithLabelValues(backend, mode).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	m.requestsTotal.WithLabelValues(backend, mode, outcome).Inc()
}

// instrumented records latency and outcome of every call.
type instrumented struct {
	Client
	metrics *Metrics
}

// Instrument wraps c with request metrics. A nil m returns c unchanged.
func Instrument(c Client, m *Metrics) Client {
	if m == nil {
		return c
	}
	return &instrumented{Client: c, metrics: m}
}

func (i *instrumented) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := i.Client.Generate(ctx, req)
	i.metrics.observe(i.Backend(), "batch", start, err)
	return resp, err
}

func (i *instrumented) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	start := time.Now()
	resp, err := i.Client.Stream(ctx, req, onChunk)
	i.metrics.observe(i.Backend(), "stream", start, err)
	return resp, err
}
