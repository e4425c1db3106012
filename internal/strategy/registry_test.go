package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantopia/internal/models"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(MACrossoverDefinition()))

	def, ok := r.Get(MACrossoverName)
	require.True(t, ok)
	assert.Equal(t, MACrossoverName, def.Name)

	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestRegistryRejectsBadDefinitions(t *testing.T) {
	r := NewRegistry()
	factory := func(Params) (Strategy, error) { return nil, nil }

	assert.Error(t, r.Register(Definition{New: factory}))
	assert.Error(t, r.Register(Definition{Name: "x"}))
	assert.Error(t, r.Register(Definition{
		Name:   "dup",
		New:    factory,
		Params: []ParamSpec{IntParam("a", 1, 0, 5, ""), IntParam("a", 1, 0, 5, "")},
	}))
	assert.Error(t, r.Register(Definition{
		Name:   "bad-default",
		New:    factory,
		Params: []ParamSpec{IntParam("a", 10, 0, 5, "")},
	}))

	require.NoError(t, r.Register(MACrossoverDefinition()))
	assert.Error(t, r.Register(MACrossoverDefinition()), "second registration must fail")
}

func TestRegistryListSorted(t *testing.T) {
	r := DefaultRegistry()
	list := r.List()
	require.Len(t, list, 4)

	names := make([]string, len(list))
	for i, m := range list {
		names[i] = m.Name
	}
	assert.Equal(t, []string{MACrossoverName, MultiFactorName, RandomName, RSIReversionName}, names)
	assert.NotEmpty(t, list[0].Params)
}

func TestResolveAppliesDefaultsAndCoerces(t *testing.T) {
	r := DefaultRegistry()

	params, err := r.Resolve(MACrossoverName, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, params.Int("short_window"))
	assert.Equal(t, 20, params.Int("long_window"))

	params, err = r.Resolve(MACrossoverName, map[string]any{"short_window": "3", "long_window": 10.0})
	require.NoError(t, err)
	assert.Equal(t, 3, params.Int("short_window"))
	assert.Equal(t, 10, params.Int("long_window"))

	params, err = r.Resolve(RSIReversionName, map[string]any{"oversold": "25.5", "period": ""})
	require.NoError(t, err)
	assert.Equal(t, 25.5, params.Float("oversold"))
	assert.Equal(t, 14, params.Int("period"))
}

func TestResolveErrors(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name     string
		strategy string
		raw      map[string]any
	}{
		{"unknown strategy", "nope", nil},
		{"unknown parameter", MACrossoverName, map[string]any{"window": 3}},
		{"out of range", MACrossoverName, map[string]any{"long_window": 500}},
		{"not an integer", MACrossoverName, map[string]any{"short_window": "3.5"}},
		{"not a number", MACrossoverName, map[string]any{"short_window": "abc"}},
		{"cross-field", MACrossoverName, map[string]any{"short_window": 30, "long_window": 20}},
		{"probabilities", RandomName, map[string]any{"buy_probability": 0.7, "sell_probability": 0.7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Build(tt.strategy, tt.raw)
			require.Error(t, err)
			assert.True(t, models.IsConfigurationError(err), "got %v", err)
		})
	}

	_, err := r.Build("nope", nil)
	assert.True(t, errors.Is(err, models.ErrStrategyNotFound))
}

func TestBuildReturnsParameters(t *testing.T) {
	s, err := DefaultRegistry().Build(MultiFactorName, map[string]any{"stop_loss_pct": 3})
	require.NoError(t, err)
	assert.Equal(t, MultiFactorName, s.Name())
	assert.Equal(t, 3.0, s.GetParameters().Float("stop_loss_pct"))
	assert.Equal(t, 26, s.GetParameters().Int("macd_slow"))
}

func TestValidateTemporalSafety(t *testing.T) {
	var b BaseStrategy
	assert.NoError(t, b.ValidateTemporalSafety(series(1, 2, 3)))

	pts := timedSeries(1, 2, 3)
	assert.NoError(t, b.ValidateTemporalSafety(pts))

	pts[0].Timestamp = pts[2].Timestamp.Add(1)
	assert.Error(t, b.ValidateTemporalSafety(pts))
}

func TestContextCurrent(t *testing.T) {
	assert.Equal(t, models.PricePoint{}, Context{}.Current())
	assert.Equal(t, 3.0, Context{History: series(1, 2, 3)}.Current().Price)
}

func TestStrategiesHoldOnShortHistory(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{MACrossoverName, RSIReversionName, MultiFactorName} {
		s, err := r.Build(name, nil)
		require.NoError(t, err)
		d, err := s.Evaluate(context.Background(), Context{History: series(1, 2)})
		require.NoError(t, err, name)
		assert.Equal(t, models.SignalHold, d.Kind, name)
		assert.Equal(t, "insufficient_data", d.Info["reason"], name)
	}
}
