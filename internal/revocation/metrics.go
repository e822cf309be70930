package revocation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Revoked           prometheus.Counter
	IsRevokedDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Revoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_revocation_entries_total",
			Help: "Total number of revocation entries written",
		}),
		IsRevokedDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "baseid_is_credential_revoked_duration_ms",
			Help:    "Latency of revocation registry lookups in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
	}
}

func (m *Metrics) addRevoked(n int) {
	if m != nil {
		m.Revoked.Add(float64(n))
	}
}

func (m *Metrics) observeLookup(start time.Time) {
	if m != nil {
		m.IsRevokedDuration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}
}
