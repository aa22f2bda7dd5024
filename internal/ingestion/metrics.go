package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ingestion collectors. A nil *Metrics records nothing.
type Metrics struct {
	// ingestsTotal counts Ingest calls by outcome: "ok" or "error".
	ingestsTotal *prometheus.CounterVec

	// chunksTotal counts chunks that survived dedupe and were stored.
	chunksTotal prometheus.Counter

	// duplicatesTotal counts chunks dropped as exact duplicates or blanks.
	duplicatesTotal prometheus.Counter

	// ingestDuration observes end-to-end Ingest latency.
	ingestDuration prometheus.Histogram

	// sourcesDeletedTotal counts Delete calls that removed something.
	sourcesDeletedTotal prometheus.Counter
}

// NewMetrics registers the ingestion collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ingestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "sources_total",
			Help:      "Source ingests, partitioned by outcome.",
		}, []string{"outcome"}),

		chunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "chunks_total",
			Help:      "Chunks embedded and stored.",
		}),

		duplicatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "chunks_dropped_total",
			Help:      "Chunks dropped before embedding as blanks or exact duplicates.",
		}),

		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "End-to-end latency of a source ingest.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		sourcesDeletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "sources_deleted_total",
			Help:      "Sources removed from the index and catalog.",
		}),
	}
}

func (m *Metrics) ingested(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.ingestsTotal.WithLabelValues(outcome).Inc()
	m.ingestDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) chunks(stored, dropped int) {
	if m == nil {
		return
	}
	m.chunksTotal.Add(float64(stored))
	m.duplicatesTotal.Add(float64(dropped))
}

func (m *Metrics) sourceDeleted() {
	if m != nil {
		m.sourcesDeletedTotal.Inc()
	}
}
