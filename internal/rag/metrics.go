package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors owned by the rag gateways.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// embedBatchesTotal counts embedding provider calls by outcome.
	embedBatchesTotal *prometheus.CounterVec

	// recordsUpsertedTotal counts vector records written.
	recordsUpsertedTotal prometheus.Counter

	// recordsDeletedTotal counts vector records deleted, by id or by filter.
	recordsDeletedTotal prometheus.Counter

	// partialDeleteRiskTotal counts deletes whose enumeration hit the
	// configured cap, so some records may have survived.
	partialDeleteRiskTotal prometheus.Counter

	// retrievalsTotal counts Retrieve calls by outcome: "hit", "empty", "error".
	retrievalsTotal *prometheus.CounterVec
}

// NewMetrics registers the rag collectors against reg. Pass a fresh
// prometheus.NewRegistry() in tests to keep them hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		embedBatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "embedding",
			Name:      "batches_total",
			Help:      "Embedding provider calls, partitioned by outcome.",
		}, []string{"outcome"}),

		recordsUpsertedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "vectors",
			Name:      "upserted_total",
			Help:      "Vector records written to the index.",
		}),

		recordsDeletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "vectors",
			Name:      "deleted_total",
			Help:      "Vector records deleted from the index.",
		}),

		partialDeleteRiskTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "vectors",
			Name:      "partial_delete_risk_total",
			Help:      "Source deletes whose enumeration reached the top-k cap.",
		}),

		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Retrieve calls, partitioned by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) embedBatch(outcome string) {
	if m != nil {
		m.embedBatchesTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) upserted(n int) {
	if m != nil {
		m.recordsUpsertedTotal.Add(float64(n))
	}
}

func (m *Metrics) deleted(n int) {
	if m != nil {
		m.recordsDeletedTotal.Add(float64(n))
	}
}

func (m *Metrics) partialDeleteRisk() {
	if m != nil {
		m.partialDeleteRiskTotal.Inc()
	}
}

func (m *Metrics) retrieval(outcome string) {
	if m != nil {
		m.retrievalsTotal.WithLabelValues(outcome).Inc()
	}
}
