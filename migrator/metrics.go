package migrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors a Session reports to.
type Metrics struct {
	recalcDuration *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	divergenceBps  prometheus.Gauge
}

// NewMetrics creates the session collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		recalcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "migrator",
			Name:      "recalculate_duration_seconds",
			Help:      "Time spent reading chain state and recomputing a snapshot.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "migrator",
			Name:      "execution_transitions_total",
			Help:      "Execution state changes by destination state.",
		}, []string{"to"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "migrator",
			Name:      "submissions_total",
			Help:      "Migration submissions by error class.",
		}, []string{"result"}),
		divergenceBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "migrator",
			Name:      "price_divergence_bps",
			Help:      "Last observed gap between destination and source price, in basis points.",
		}),
	}
	reg.MustRegister(m.recalcDuration, m.transitions, m.submissions, m.divergenceBps)
	return m
}

// resultLabel names the class of err for metric labels.
func resultLabel(err error) string {
	switch Classify(err) {
	case nil:
		return "ok"
	case ErrInput:
		return "input"
	case ErrExternalRejection:
		return "rejected"
	case ErrInvariant:
		return "invariant"
	default:
		return "transient"
	}
}
