package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for privacy settings and disclosures.
type Metrics struct {
	SettingsUpdated prometheus.Counter
	Disclosures     prometheus.Counter
	IdentityProofs  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SettingsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_privacy_settings_updated_total",
			Help: "Privacy settings updates",
		}),
		Disclosures: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_privacy_disclosures_total",
			Help: "Selective disclosures prepared",
		}),
		IdentityProofs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baseid_privacy_identity_proofs_total",
			Help: "Identity proof verifications by result (valid, invalid)",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementSettingsUpdated() {
	m.SettingsUpdated.Inc()
}

func (m *Metrics) IncrementDisclosures() {
	m.Disclosures.Inc()
}

func (m *Metrics) IncrementIdentityProof(valid bool) {
	if valid {
		m.IdentityProofs.WithLabelValues("valid").Inc()
		return
	}
	m.IdentityProofs.WithLabelValues("invalid").Inc()
}
