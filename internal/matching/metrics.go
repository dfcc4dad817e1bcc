package matching

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRankingPasses         = "discovery_ranking_passes_total"
	MetricRankingFallbacks      = "discovery_ranking_fallbacks_total"
	MetricRankingVectorDuration = "discovery_ranking_vector_duration_seconds"
)

// Ranking strategies used as label values.
const (
	StrategyClassic = "classic"
	StrategyVector  = "vector"
)

// Metrics contains Prometheus metrics for ranking passes.
type Metrics struct {
	passes         *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	vectorDuration prometheus.Histogram
}

// NewMetrics creates ranking metrics. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingPasses,
				Help: "Total number of ranking passes by the strategy that produced the result",
			},
			[]string{"strategy"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingFallbacks,
				Help: "Total number of vector ranking passes that fell back to classic ranking",
			},
			[]string{"reason"},
		),
		vectorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingVectorDuration,
			Help:    "Duration of successful vector ranking passes in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
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

// IncPass counts a ranking pass for strategy.
func (m *Metrics) IncPass(strategy string) {
	m.passes.WithLabelValues(strategy).Inc()
}

// IncFallback counts a vector pass that fell back for reason.
func (m *Metrics) IncFallback(reason string) {
	m.fallbacks.WithLabelValues(reason).Inc()
}

// ObserveVectorDuration records the duration of a vector pass.
func (m *Metrics) ObserveVectorDuration(seconds float64) {
	m.vectorDuration.Observe(seconds)
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.passes,
		m.fallbacks,
		m.vectorDuration,
	}
}
