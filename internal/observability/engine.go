package observability

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics counts goods receipt outcomes.
type EngineMetrics struct {
	grnsCreated   *prometheus.CounterVec
	acceptedUnits *prometheus.CounterVec
}

// NewEngineMetrics registers receipt collectors against the registerer.
func NewEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowbill_grns_created_total",
		Help: "Goods receipt notes created, by receipt type and final status.",
	}, []string{"type", "status"})
	accepted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowbill_grn_accepted_units_total",
		Help: "Stock units accepted into inventory through goods receipts.",
	}, []string{"type"})
	registerer.MustRegister(created, accepted)
	return &EngineMetrics{grnsCreated: created, acceptedUnits: accepted}
}

// GRNCreated records one committed receipt.
func (m *EngineMetrics) GRNCreated(grnType, status string, acceptedUnits int64) {
	if m == nil {
		return
	}
	m.grnsCreated.WithLabelValues(grnType, status).Inc()
	if acceptedUnits > 0 {
		m.acceptedUnits.WithLabelValues(grnType).Add(float64(acceptedUnits))
	}
}
