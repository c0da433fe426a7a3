package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/prompt"
)

// Metrics holds the query collectors. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	durationSeconds  *prometheus.HistogramVec
	activeStreams    prometheus.Gauge
	retrievedRecords prometheus.Histogram
	lowConfidence    prometheus.Counter
}

// NewMetrics registers the query metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casebot",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Questions answered, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),
		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "casebot",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end latency of a question, retrieval and generation included.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 1000},
		}, []string{"mode", "outcome"}),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "casebot",
			Subsystem: "query",
			Name:      "active_streams",
			Help:      "Streaming answers currently in progress.",
		}),
		retrievedRecords: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "casebot",
			Subsystem: "query",
			Name:      "retrieved_records",
			Help:      "Records placed in the prompt context per question.",
			Buckets:   []float64{0, 1, 5, 10, 20, 30, 40},
		}),
		lowConfidence: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "casebot",
			Subsystem: "query",
			Name:      "low_confidence_total",
			Help:      "Questions where every retrieved record scored below the confidence threshold.",
		}),
	}
}

func (m *Metrics) query(mode string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	m.requestsTotal.WithLabelValues(mode, outcome).Inc()
	m.durationSeconds.WithLabelValues(mode, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) retrieved(c prompt.Context) {
	if m == nil {
		return
	}
	m.retrievedRecords.Observe(float64(c.Included))
	if c.AllLowConfidence {
		m.lowConfidence.Inc()
	}
}

func (m *Metrics) streamStarted() {
	if m != nil {
		m.activeStreams.Inc()
	}
}

func (m *Metrics) streamEnded() {
	if m != nil {
		m.activeStreams.Dec()
	}
}
