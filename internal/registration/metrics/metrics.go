package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for on-chain registration and the
// reconciliation sweep.
type Metrics struct {
	Registrations *prometheus.CounterVec
	DriftRepairs  prometheus.Counter
	SweepDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landledger_registrations_total",
			Help: "On-chain registration attempts by outcome",
		}, []string{"outcome"}),

		DriftRepairs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landledger_registration_drift_repairs_total",
			Help: "Database records repaired to match on-chain registration state",
		}),

		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "landledger_registration_sweep_duration_seconds",
			Help:    "Duration of a full reconciliation sweep",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementRegistration(outcome string) {
	if m != nil {
		m.Registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementDriftRepair() {
	if m != nil {
		m.DriftRepairs.Inc()
	}
}

func (m *Metrics) ObserveSweepDuration(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}
