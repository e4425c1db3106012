// Package metrics provides the centralized Prometheus metrics registry for the task
// engine, the backtester and the external providers.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Tick outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Counter metrics
var (
	TaskTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "task_ticks_total",
		Help:      "Total number of task loop ticks by loop and outcome",
	}, []string{"loop", "outcome"})
	TradesExecutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "trades_executed_total",
		Help:      "Total number of task trades by mode and side",
	}, []string{"mode", "side"})
	ControlActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "control_actions_total",
		Help:      "Total number of task control actions by action and outcome",
	}, []string{"action", "outcome"})
	FailureGuardTripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "failure_guard_trips_total",
		Help:      "Total number of tasks moved to error by the consecutive failure guard",
	})
	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "provider_requests_total",
		Help:      "Total number of quote and order provider calls by provider and outcome",
	}, []string{"provider", "outcome"})
	QuoteCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "quote_cache_hits_total",
		Help:      "Total number of quotes served from the shared quote cache",
	})
	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quantopia",
		Name:      "events_published_total",
		Help:      "Total number of task events published by type and outcome",
	}, []string{"type", "outcome"})
)

// Gauge metrics
var (
	TasksByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quantopia",
		Name:      "tasks",
		Help:      "Number of registered tasks by status",
	}, []string{"status"})
	TaskEquity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quantopia",
		Name:      "task_equity",
		Help:      "Latest equity (cash plus position value) of each trading task",
	}, []string{"task_id", "symbol"})
)

// Histogram metrics
var (
	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quantopia",
		Name:      "provider_latency_seconds",
		Help:      "Latency of quote and order provider calls in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})
	StrategyEvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quantopia",
		Name:      "strategy_evaluation_duration_seconds",
		Help:      "Duration of strategy evaluation in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register counter metrics
		registry.MustRegister(TaskTicksTotal)
		registry.MustRegister(TradesExecutedTotal)
		registry.MustRegister(ControlActionsTotal)
		registry.MustRegister(FailureGuardTripsTotal)
		registry.MustRegister(ProviderRequestsTotal)
		registry.MustRegister(QuoteCacheHitsTotal)
		registry.MustRegister(EventsPublishedTotal)

		// Register gauge metrics
		registry.MustRegister(TasksByStatus)
		registry.MustRegister(TaskEquity)

		// Register histogram metrics
		registry.MustRegister(ProviderLatency)
		registry.MustRegister(StrategyEvaluationDuration)

		// Register strategy metrics
		registry.MustRegister(StrategySignalsTotal)
		registry.MustRegister(StrategyErrorsTotal)

		// Register backtest metrics
		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(BacktestDuration)
		registry.MustRegister(BacktestReturnPct)

		// Register API metrics
		registry.MustRegister(APIRequestsTotal)
		registry.MustRegister(APIRequestDuration)
		registry.MustRegister(StreamClients)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordTick records one sampling or decision tick.
func RecordTick(loop, outcome string) {
	TaskTicksTotal.WithLabelValues(loop, outcome).Inc()
}

// RecordTrade records an executed task trade.
func RecordTrade(mode, side string) {
	TradesExecutedTotal.WithLabelValues(mode, side).Inc()
}

// RecordControlAction records a pause, resume, stop, delete or create request.
func RecordControlAction(action string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	ControlActionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordFailureGuardTrip records a task reaching its failure threshold.
func RecordFailureGuardTrip() {
	FailureGuardTripsTotal.Inc()
}

// RecordProviderCall records the outcome and latency of a provider call.
func RecordProviderCall(provider string, durationSeconds float64, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	ProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordQuoteCacheHit records a quote served from cache.
func RecordQuoteCacheHit() {
	QuoteCacheHitsTotal.Inc()
}

// RecordEventPublished records a task event publish attempt.
func RecordEventPublished(eventType string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	EventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
}

// UpdateTaskStatusCounts replaces the per-status task gauge.
func UpdateTaskStatusCounts(counts map[string]int) {
	TasksByStatus.Reset()
	for status, n := range counts {
		TasksByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// UpdateTaskEquity updates the equity gauge of one task.
func UpdateTaskEquity(taskID, symbol string, equity float64) {
	TaskEquity.WithLabelValues(taskID, symbol).Set(equity)
}

// ForgetTask drops the per-task series of a deleted task.
func ForgetTask(taskID, symbol string) {
	TaskEquity.DeleteLabelValues(taskID, symbol)
}

// RecordStrategyEvaluation records how long a strategy evaluation took.
func RecordStrategyEvaluation(durationSeconds float64) {
	StrategyEvaluationDuration.Observe(durationSeconds)
}
