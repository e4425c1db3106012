package metrics

import "github.com/prometheus/client_golang/prometheus"

// Strategy-specific counter vectors
var (
	StrategySignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "strategy_signals_total",
		Help:      "Total number of live strategy signals by strategy and kind",
	}, []string{"strategy", "kind"})

	StrategyErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "strategy_errors_total",
		Help:      "Total number of failed strategy evaluations",
	}, []string{"strategy"})
)

// RecordStrategySignal records a live strategy decision.
func RecordStrategySignal(strategy, kind string) {
	StrategySignalsTotal.WithLabelValues(strategy, kind).Inc()
}

// RecordStrategyError records a failed strategy evaluation.
func RecordStrategyError(strategy string) {
	StrategyErrorsTotal.WithLabelValues(strategy).Inc()
}
