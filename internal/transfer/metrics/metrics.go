package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the transfer state machine.
type Metrics struct {
	// Transfer outcomes by operation and result code
	Outcome *prometheus.CounterVec

	// End-to-end execute latency, dominated by chain confirmation
	ExecuteLatency prometheus.Histogram
}

// New creates a Metrics instance with all transfer metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landledger_transfer_outcomes_total",
			Help: "Total transfer operations by operation and outcome",
		}, []string{"operation", "outcome"}), // operation: "initiate", "execute", "cancel"

		ExecuteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "landledger_transfer_execute_duration_seconds",
			Help:    "Duration of transfer execution including chain confirmation",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		}),
	}
}

// IncrementOutcome records an operation outcome.
func (m *Metrics) IncrementOutcome(operation, outcome string) {
	if m != nil {
		m.Outcome.WithLabelValues(operation, outcome).Inc()
	}
}

// ObserveExecuteLatency records the duration of a full execute call.
func (m *Metrics) ObserveExecuteLatency(d time.Duration) {
	if m != nil {
		m.ExecuteLatency.Observe(d.Seconds())
	}
}
