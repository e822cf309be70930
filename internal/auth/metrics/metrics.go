package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChallengesIssued    prometheus.Counter
	Authentications     *prometheus.CounterVec
	Logouts             prometheus.Counter
	TokenRevokedLookups prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChallengesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_auth_challenges_issued_total",
			Help: "Total number of authentication challenges issued",
		}),
		Authentications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baseid_auth_authentications_total",
			Help: "Challenge responses by result (success, failure)",
		}, []string{"result"}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_auth_logouts_total",
			Help: "Total number of tokens revoked by logout",
		}),
		TokenRevokedLookups: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "baseid_is_token_revoked_duration_ms",
			Help:    "Latency of token revocation checks in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
	}
}

func (m *Metrics) IncrementChallenges() {
	m.ChallengesIssued.Inc()
}

func (m *Metrics) IncrementAuthentication(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.Authentications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementLogout() {
	m.Logouts.Inc()
}
