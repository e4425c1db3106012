package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backtest counter vectors
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by method and status",
	}, []string{"method", "status"})
)

// Backtest histogram vectors
var (
	BacktestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quantopia",
		Name:      "backtest_duration_seconds",
		Help:      "Duration of backtest runs in seconds",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"method"})
)

// Backtest gauge vectors
var (
	BacktestReturnPct = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quantopia",
		Name:      "backtest_return_pct",
		Help:      "Total return percentage of the latest backtest of each strategy",
	}, []string{"strategy"})
)

// RecordBacktestRun records a backtest run event.
// method should be one of: "replay", "sweep", "walk_forward", "monte_carlo"
// status should be one of: "success", "failure"
func RecordBacktestRun(method, status string, durationSeconds float64) {
	BacktestRunsTotal.WithLabelValues(method, status).Inc()
	BacktestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// UpdateBacktestReturn updates the latest return of a strategy.
func UpdateBacktestReturn(strategy string, returnPct float64) {
	BacktestReturnPct.WithLabelValues(strategy).Set(returnPct)
}
