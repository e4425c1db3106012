package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTrade() TaskConfig {
	cfg := TaskConfig{
		Symbol:          "AAPL",
		Strategy:        "ma_crossover",
		AllowedSessions: []Session{SessionRegular},
		Duration:        TaskDuration{Minutes: 5},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := TaskConfig{Symbol: "AAPL", Duration: TaskDuration{Permanent: true}}
	cfg.ApplyDefaults()

	assert.Equal(t, ModePaper, cfg.Mode)
	assert.Equal(t, TaskKindFetch, cfg.Kind)
	assert.Equal(t, Interval{Value: 5, Unit: UnitSeconds}, cfg.SamplingInterval)
	assert.Equal(t, Interval{}, cfg.DecisionInterval, "fetch tasks have no decision loop")
	assert.Equal(t, []Session{SessionRegular}, cfg.AllowedSessions)
	assert.Equal(t, DefaultMaxCacheSize, cfg.MaxCacheSize)
	assert.Equal(t, DefaultInitialCash, cfg.InitialCash)
	assert.Equal(t, DurationWallClock, cfg.DurationPolicy)
	assert.Equal(t, DefaultLotSize, cfg.Lot())
	assert.Equal(t, DefaultMaxPositionRatio, cfg.PositionRatio())
	require.NoError(t, cfg.Validate())

	explicit := TaskConfig{Symbol: "AAPL", Duration: TaskDuration{Permanent: true}, LotSize: Float64(0)}
	explicit.ApplyDefaults()
	require.NotNil(t, explicit.LotSize)
	assert.Zero(t, *explicit.LotSize, "an explicit zero lot is not replaced")

	trade := validTrade()
	assert.Equal(t, TaskKindTrade, trade.Kind)
	assert.Equal(t, Interval{Value: 30, Unit: UnitSeconds}, trade.DecisionInterval)
	assert.Equal(t, Commission{}, trade.Commission, "live trading charges no commission by default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TaskConfig)
		field  string
	}{
		{"missing symbol", func(c *TaskConfig) { c.Symbol = "" }, "symbol"},
		{"unknown mode", func(c *TaskConfig) { c.Mode = "margin" }, "mode"},
		{"trade without strategy", func(c *TaskConfig) { c.Strategy = "" }, "strategy"},
		{"closed session", func(c *TaskConfig) { c.AllowedSessions = []Session{SessionClosed} }, "allowed_sessions[0]"},
		{"bad sampling unit", func(c *TaskConfig) { c.SamplingInterval = Interval{Value: 1, Unit: "days"} }, "sampling_interval"},
		{"zero decision interval", func(c *TaskConfig) { c.DecisionInterval = Interval{Value: 0, Unit: UnitSeconds} }, "decision_interval"},
		{"cache too small", func(c *TaskConfig) { c.MaxCacheSize = 1 }, "max_cache_size"},
		{"zero duration", func(c *TaskConfig) { c.Duration = TaskDuration{} }, "duration"},
		{"negative lot", func(c *TaskConfig) { c.LotSize = Float64(-1) }, "lot_size"},
		{"zero lot", func(c *TaskConfig) { c.LotSize = Float64(0) }, "lot_size"},
		{"position ratio above one", func(c *TaskConfig) { c.MaxPositionRatio = Float64(1.5) }, "max_position_ratio"},
		{"zero position ratio", func(c *TaskConfig) { c.MaxPositionRatio = Float64(0) }, "max_position_ratio"},
		{"commission rate of one", func(c *TaskConfig) { c.Commission.Rate = 1 }, "rate"},
		{"unknown policy", func(c *TaskConfig) { c.DurationPolicy = "cpu_time" }, "duration_policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTrade()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %T", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	cfg := validTrade()
	assert.NoError(t, cfg.Validate())
}

func TestIntervalDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, Interval{Value: 5, Unit: UnitSeconds}.Duration())
	assert.Equal(t, 3*time.Minute, Interval{Value: 3, Unit: UnitMinutes}.Duration())
	assert.Equal(t, 2*time.Hour, Interval{Value: 2, Unit: UnitHours}.Duration())
	assert.Equal(t, "3m0s", Interval{Value: 3, Unit: UnitMinutes}.String())
	assert.False(t, Interval{Value: 0, Unit: UnitSeconds}.Valid())
	assert.False(t, Interval{Value: 1, Unit: ""}.Valid())
}

func TestTaskDurationTotal(t *testing.T) {
	d := TaskDuration{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	assert.Equal(t, 26*time.Hour+3*time.Minute+4*time.Second, d.Total())
	assert.Zero(t, TaskDuration{Permanent: true, Hours: 5}.Total())
}

func TestElapsedPolicies(t *testing.T) {
	start := time.Date(2026, 10, 12, 14, 0, 0, 0, time.UTC)
	state := TaskState{
		StartedAt:   start,
		InactiveFor: 20 * time.Second,
		Config:      TaskConfig{Duration: TaskDuration{Minutes: 1}, DurationPolicy: DurationWallClock},
	}
	now := start.Add(70 * time.Second)

	assert.Equal(t, 70*time.Second, state.Elapsed(now))
	assert.True(t, state.DurationExhausted(now))

	state.Config.DurationPolicy = DurationActiveOnly
	assert.Equal(t, 50*time.Second, state.Elapsed(now))
	assert.False(t, state.DurationExhausted(now))

	since := start.Add(60 * time.Second)
	state.InactiveSince = &since
	assert.Equal(t, 40*time.Second, state.Elapsed(now), "an open inactive span is not counted")

	state.Config.Duration = TaskDuration{Permanent: true}
	assert.False(t, state.DurationExhausted(now.Add(24*time.Hour)))
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := validTrade()
	cfg.Params = map[string]any{"short_window": 5}
	clone := cfg.Clone()

	*clone.LotSize = 50
	assert.Equal(t, DefaultLotSize, *cfg.LotSize)
	clone.Params["short_window"] = 9
	clone.AllowedSessions[0] = SessionOvernight
	assert.Equal(t, 5, cfg.Params["short_window"])
	assert.Equal(t, SessionRegular, cfg.AllowedSessions[0])
}

func TestSessionAllowed(t *testing.T) {
	cfg := validTrade()
	cfg.AllowedSessions = []Session{SessionRegular, SessionAfterHours}
	assert.True(t, cfg.IsSessionAllowed(SessionAfterHours))
	assert.False(t, cfg.IsSessionAllowed(SessionPreMarket))
	assert.False(t, cfg.IsSessionAllowed(SessionClosed))
}

func TestStatusClassification(t *testing.T) {
	for _, s := range []Status{StatusStopped, StatusCompleted, StatusError} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsActive(), s)
	}
	for _, s := range []Status{StatusRunning, StatusWaiting} {
		assert.True(t, s.IsActive(), s)
		assert.False(t, s.IsTerminal(), s)
	}
	assert.False(t, StatusPaused.IsTerminal())
	assert.False(t, StatusPaused.IsActive())
}

func TestErrorTaxonomy(t *testing.T) {
	cfgErr := fmt.Errorf("create: %w", NewConfigurationError("symbol", "is required"))
	assert.True(t, IsConfigurationError(cfgErr))
	assert.EqualError(t, errors.Unwrap(cfgErr), "invalid configuration: symbol: is required")

	transient := fmt.Errorf("tick: %w", &TransientFetchError{Op: "quote", Symbol: "AAPL", Err: ErrProviderUnavailable})
	assert.True(t, IsTransient(transient))
	assert.ErrorIs(t, transient, ErrProviderUnavailable)
	assert.False(t, IsStrategyError(transient))

	stratErr := &StrategyError{Strategy: "rsi_reversion", Index: 12, Err: errors.New("boom")}
	assert.True(t, IsStrategyError(fmt.Errorf("decide: %w", stratErr)))
	assert.Contains(t, stratErr.Error(), "index 12")
}
