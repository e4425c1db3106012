package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry(t *testing.T) {
	// Initialize the registry
	InitRegistry()
	registry := GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
	assert.Same(t, registry, InitRegistry())
}

func TestRecordTick(t *testing.T) {
	InitRegistry()

	before := testutil.ToFloat64(TaskTicksTotal.WithLabelValues("sampling", OutcomeSuccess))
	RecordTick("sampling", OutcomeSuccess)
	assert.Equal(t, before+1, testutil.ToFloat64(TaskTicksTotal.WithLabelValues("sampling", OutcomeSuccess)))
}

func TestRecordControlAction(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{name: "applied", err: nil, outcome: OutcomeSuccess},
		{name: "rejected", err: errors.New("terminal"), outcome: OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := ControlActionsTotal.WithLabelValues("pause", tt.outcome)
			before := testutil.ToFloat64(counter)
			RecordControlAction("pause", tt.err)
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}

func TestRecordProviderCall(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordProviderCall("alpaca_quote", 0.12, nil)
		RecordProviderCall("alpaca_quote", 2.5, errors.New("timeout"))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("alpaca_quote", OutcomeFailure)))
}

func TestUpdateTaskStatusCounts(t *testing.T) {
	InitRegistry()

	UpdateTaskStatusCounts(map[string]int{"running": 2, "paused": 1})
	assert.Equal(t, 2.0, testutil.ToFloat64(TasksByStatus.WithLabelValues("running")))

	UpdateTaskStatusCounts(map[string]int{"stopped": 3})
	assert.Equal(t, 0.0, testutil.ToFloat64(TasksByStatus.WithLabelValues("running")))
	assert.Equal(t, 3.0, testutil.ToFloat64(TasksByStatus.WithLabelValues("stopped")))
}

func TestTaskEquityLifecycle(t *testing.T) {
	InitRegistry()

	UpdateTaskEquity("task_001", "AAPL.US", 100250)
	assert.Equal(t, 100250.0, testutil.ToFloat64(TaskEquity.WithLabelValues("task_001", "AAPL.US")))
	assert.NotPanics(t, func() { ForgetTask("task_001", "AAPL.US") })
}

func TestMetricsHandler(t *testing.T) {
	InitRegistry()
	RecordFailureGuardTrip()

	handler := Handler()
	require.NotNil(t, handler)
	assert.Implements(t, (*http.Handler)(nil), handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quantopia_failure_guard_trips_total")
}

func TestStrategyMetrics(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordStrategySignal("ma_crossover", "buy")
		RecordStrategyError("ma_crossover")
		RecordStrategyEvaluation(0.002)
	})
}

func TestBacktestMetrics(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordBacktestRun("replay", OutcomeSuccess, 0.05)
		UpdateBacktestReturn("ma_crossover", 4.2)
	})
	assert.Equal(t, 4.2, testutil.ToFloat64(BacktestReturnPct.WithLabelValues("ma_crossover")))
}

func BenchmarkRecordTick(b *testing.B) {
	InitRegistry()

	for i := 0; i < b.N; i++ {
		RecordTick("sampling", OutcomeSuccess)
	}
}

func BenchmarkRecordProviderCall(b *testing.B) {
	InitRegistry()

	for i := 0; i < b.N; i++ {
		RecordProviderCall("simulated", 0.001, nil)
	}
}
