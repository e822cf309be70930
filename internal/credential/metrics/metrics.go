package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for credential issuance and verification.
type Metrics struct {
	Issued             prometheus.Counter
	Registered         prometheus.Counter
	StatusChanges      *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	VerifyDuration     prometheus.Histogram
	SelectiveDisclosed prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Issued: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_credentials_issued_total",
			Help: "Credentials issued by the registry issuer",
		}),
		Registered: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_credentials_registered_total",
			Help: "Externally issued credentials registered",
		}),
		StatusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baseid_credential_status_changes_total",
			Help: "Credential lifecycle transitions by target status",
		}, []string{"status"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baseid_credential_verifications_total",
			Help: "Credential verifications by outcome (valid, invalid)",
		}, []string{"result"}),
		VerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "baseid_credential_verify_duration_seconds",
			Help:    "Duration of credential verification",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		SelectiveDisclosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_credentials_selective_total",
			Help: "Credentials issued with claim commitments",
		}),
	}
}

func (m *Metrics) IncrementIssued(selective bool) {
	m.Issued.Inc()
	if selective {
		m.SelectiveDisclosed.Inc()
	}
}

func (m *Metrics) IncrementRegistered() {
	m.Registered.Inc()
}

func (m *Metrics) IncrementStatusChange(status string) {
	m.StatusChanges.WithLabelValues(status).Inc()
}

// ObserveVerification records the outcome and duration of a verification
// started at start.
func (m *Metrics) ObserveVerification(valid bool, start time.Time) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.Verifications.WithLabelValues(result).Inc()
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}
