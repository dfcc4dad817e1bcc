package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricMessages is the message outcome counter.
const MetricMessages = "chat_messages_total"

// Message outcomes used as label values.
const (
	OutcomeSent     = "sent"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeDenied   = "denied"
	OutcomeError    = "error"
)

// Metrics counts message outcomes. A nil *Metrics records nothing.
type Metrics struct {
	messages *prometheus.CounterVec
}

// NewMetrics creates chat metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMessages,
				Help: "Total number of chat message sends by outcome",
			},
			[]string{"outcome"},
		),
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
	return []prometheus.Collector{m.messages}
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}
