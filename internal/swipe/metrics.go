package swipe

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricSwipeActions         = "discovery_swipe_actions_total"
	MetricNotificationFailures = "discovery_match_notification_failures_total"
)

// Swipe outcomes used as label values.
const (
	OutcomeRecorded = "recorded"
	OutcomeMatched  = "matched"
	OutcomeInvalid  = "invalid"
	OutcomeDenied   = "denied"
	OutcomeError    = "error"
)

// Metrics counts swipe outcomes. A nil *Metrics records nothing.
type Metrics struct {
	actions       *prometheus.CounterVec
	notifyFailure prometheus.Counter
}

// NewMetrics creates swipe metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSwipeActions,
				Help: "Total number of swipe actions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		notifyFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricNotificationFailures,
			Help: "Total number of match notifications that could not be dispatched",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.actions, m.notifyFailure}
}

func (m *Metrics) observe(action Action, outcome string) {
	if m == nil {
		return
	}
	if !action.Valid() {
		action = "unknown"
	}
	m.actions.WithLabelValues(string(action), outcome).Inc()
}

func (m *Metrics) incNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailure.Inc()
}
