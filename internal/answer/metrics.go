package answer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Metrics holds the chat model collectors. A nil *Metrics records nothing.
type Metrics struct {
	// completionsTotal counts model calls by op and outcome.
	completionsTotal *prometheus.CounterVec

	// completionDuration observes model call latency by op.
	completionDuration *prometheus.HistogramVec

	// breakerOpen is 1 while the circuit breaker is open, 0.5 half-open.
	breakerOpen prometheus.Gauge
}

// NewMetrics registers the answer collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		completionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "llm",
			Name:      "completions_total",
			Help:      "Chat model calls, partitioned by operation and outcome.",
		}, []string{"op", "outcome"}),

		completionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "llm",
			Name:      "completion_duration_seconds",
			Help:      "Chat model call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"op"}),

		breakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "llm",
			Name:      "circuit_open",
			Help:      "1 while the chat model circuit breaker is open, 0.5 while half-open, 0 when closed.",
		}),
	}
}

func (m *Metrics) completion(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completionsTotal.WithLabelValues(op, outcome).Inc()
	m.completionDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) breakerState(s gobreaker.State) {
	if m == nil {
		return
	}
	switch s {
	case gobreaker.StateOpen:
		m.breakerOpen.Set(1)
	case gobreaker.StateHalfOpen:
		m.breakerOpen.Set(0.5)
	default:
		m.breakerOpen.Set(0)
	}
}
