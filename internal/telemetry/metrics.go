package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure reason label values.
const (
	ReasonClosed     = "closed"
	ReasonWrite      = "write"
	ReasonTimeout    = "timeout"
	ReasonIncomplete = "incomplete"
	ReasonCancelled  = "cancelled"
)

// Metrics holds the Prometheus collectors for the worker pool.
//
// A nil *Metrics is valid and disables collection; all methods are
// nil-receiver safe so call sites need no guards.
type Metrics struct {
	transactions prometheus.Counter
	failures     *prometheus.CounterVec
	restarts     prometheus.Counter
	waits        prometheus.Counter
	duration     prometheus.Histogram
}

// New creates pool metrics registered against the given registerer.
// Returns nil (collection disabled) if reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	factory := promauto.With(reg)

	return &Metrics{
		transactions: factory.NewCounter(prometheus.CounterOpts{
			Name: "deobfuscator_transactions_total",
			Help: "Total transform transactions attempted against workers.",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "deobfuscator_transaction_failures_total",
			Help: "Transactions that degraded to returning input unchanged, by reason.",
		}, []string{"reason"}),
		restarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "deobfuscator_worker_restarts_total",
			Help: "Dead workers replaced during pool selection.",
		}),
		waits: factory.NewCounter(prometheus.CounterOpts{
			Name: "deobfuscator_transaction_wait_total",
			Help: "Transactions that had to wait for a busy worker.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "deobfuscator_transaction_duration_seconds",
			Help:    "Wall time of successful transform transactions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncTransaction counts an attempted transaction.
func (m *Metrics) IncTransaction() {
	if m == nil {
		return
	}

	m.transactions.Inc()
}

// IncFailure counts a degraded transaction by reason.
func (m *Metrics) IncFailure(reason string) {
	if m == nil {
		return
	}

	m.failures.WithLabelValues(reason).Inc()
}

// IncRestart counts a worker replacement.
func (m *Metrics) IncRestart() {
	if m == nil {
		return
	}

	m.restarts.Inc()
}

// IncWait counts a transaction that found no ready worker.
func (m *Metrics) IncWait() {
	if m == nil {
		return
	}

	m.waits.Inc()
}

// ObserveDuration records the wall time of a successful transaction.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}

	m.duration.Observe(d.Seconds())
}
