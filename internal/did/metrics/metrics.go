package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the DID registry.
type Metrics struct {
	Registered      prometheus.Counter
	Updated         *prometheus.CounterVec
	Deactivated     prometheus.Counter
	ResolveDuration prometheus.Histogram
	CacheLookups    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registered: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_did_registered_total",
			Help: "Total number of DIDs registered",
		}),
		Updated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baseid_did_updated_total",
			Help: "DID document updates by operation",
		}, []string{"operation"}),
		Deactivated: factory.NewCounter(prometheus.CounterOpts{
			Name: "baseid_did_deactivated_total",
			Help: "Total number of DIDs deactivated",
		}),
		ResolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "baseid_did_resolve_duration_seconds",
			Help:    "Duration of DID resolution including cache lookups",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "baseid_did_resolver_cache_total",
			Help: "Resolver cache lookups by result (hit, miss)",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementRegistered() {
	m.Registered.Inc()
}

func (m *Metrics) IncrementUpdated(operation string) {
	m.Updated.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementDeactivated() {
	m.Deactivated.Inc()
}

// ObserveResolve records the duration of a Resolve call started at start.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}
