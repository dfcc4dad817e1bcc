package policy

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricPolicyDecisions is the name of the decision counter.
const MetricPolicyDecisions = "discovery_policy_decisions_total"

// Decision outcomes used as label values.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeFailOpen = "fail_open"
)

// Metrics counts policy decisions by kind and outcome.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
}

// NewMetrics creates policy metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPolicyDecisions,
				Help: "Total number of policy decisions by action kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.decisions)
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.decisions}
}

func (m *Metrics) observe(kind ActionKind, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(kind), outcome).Inc()
}
