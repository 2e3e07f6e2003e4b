package label

import "github.com/prometheus/client_golang/prometheus"

// registryMetrics holds Prometheus metrics for registry operations.
// All record helpers are nil-safe so a registry without metrics pays
// only a nil check.
type registryMetrics struct {
	recomputes        prometheus.Counter
	recomputeDuration prometheus.Histogram
	labelCount        prometheus.Gauge
	cycleCount        prometheus.Gauge
	ruleCount         prometheus.Gauge
	ruleEvalErrors    prometheus.Counter
}

// newRegistryMetrics creates and registers registry metrics.
func newRegistryMetrics(reg prometheus.Registerer) *registryMetrics {
	if reg == nil {
		return nil // Metrics disabled
	}

	m := &registryMetrics{
		recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "labelgraph",
			Subsystem: "registry",
			Name:      "ancestry_recomputes_total",
			Help:      "Total number of full ancestry recomputes",
		}),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "labelgraph",
			Subsystem: "registry",
			Name:      "ancestry_recompute_duration_seconds",
			Help:      "Full ancestry recompute duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		labelCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "labelgraph",
			Subsystem: "registry",
			Name:      "label_count",
			Help:      "Current number of labels",
		}),
		cycleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "labelgraph",
			Subsystem: "registry",
			Name:      "cycle_count",
			Help:      "Current number of cycle-equivalence classes with more than one member",
		}),
		ruleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "labelgraph",
			Subsystem: "registry",
			Name:      "rule_count",
			Help:      "Current number of live derived-label rules",
		}),
		ruleEvalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "labelgraph",
			Subsystem: "registry",
			Name:      "rule_eval_errors_total",
			Help:      "Total number of rule evaluation errors (rule skipped)",
		}),
	}

	reg.MustRegister(
		m.recomputes,
		m.recomputeDuration,
		m.labelCount,
		m.cycleCount,
		m.ruleCount,
		m.ruleEvalErrors,
	)
	return m
}

func (m *registryMetrics) recordRecompute(seconds float64, labels, cycles, rules int) {
	if m != nil {
		m.recomputes.Inc()
		m.recomputeDuration.Observe(seconds)
		m.labelCount.Set(float64(labels))
		m.cycleCount.Set(float64(cycles))
		m.ruleCount.Set(float64(rules))
	}
}

func (m *registryMetrics) recordRuleEvalError() {
	if m != nil {
		m.ruleEvalErrors.Inc()
	}
}
