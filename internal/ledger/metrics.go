package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks fallback anchoring. A nil *Metrics is a no-op.
type Metrics struct {
	FallbackAnchors prometheus.Counter
	Degraded        prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FallbackAnchors: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_ledger_fallback_anchors_total",
			Help: "Anchors served by the local ledger while the chain endpoint was unavailable",
		}),
		Degraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "baseid_ledger_degraded",
			Help: "1 while the ledger rpc circuit is open",
		}),
	}
}

func (m *Metrics) incFallback() {
	if m == nil {
		return
	}
	m.FallbackAnchors.Inc()
}

func (m *Metrics) setDegraded(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}
