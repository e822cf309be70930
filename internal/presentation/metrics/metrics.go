package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Verifications  *prometheus.CounterVec
	VerifyDuration prometheus.Histogram
	Credentials    prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baseid_presentation_verifications_total",
			Help: "Presentation verifications by outcome (valid, invalid)",
		}, []string{"result"}),
		VerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "baseid_presentation_verify_duration_seconds",
			Help:    "Duration of presentation verification",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		Credentials: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "baseid_presentation_credentials",
			Help:    "Number of credentials embedded per verified presentation",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}),
	}
}

func (m *Metrics) ObserveVerification(valid bool, credentials int, start time.Time) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.Verifications.WithLabelValues(result).Inc()
	m.VerifyDuration.Observe(time.Since(start).Seconds())
	m.Credentials.Observe(float64(credentials))
}
