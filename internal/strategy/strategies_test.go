package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantopia/internal/models"
)

func series(prices ...float64) []models.PricePoint {
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{Seq: int64(i), Price: p}
	}
	return out
}

func timedSeries(prices ...float64) []models.PricePoint {
	base := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	out := series(prices...)
	for i := range out {
		out[i].Timestamp = base.Add(time.Duration(i) * time.Minute)
	}
	return out
}

func TestMACrossoverGoldenCross(t *testing.T) {
	s, err := DefaultRegistry().Build(MACrossoverName, map[string]any{"short_window": 2, "long_window": 5})
	require.NoError(t, err)

	prices := []float64{10, 9, 8, 7, 6, 5, 6, 8, 10, 12}
	ctx := context.Background()

	d, err := s.Evaluate(ctx, Context{History: series(prices[:7]...)})
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, d.Kind)
	assert.Equal(t, "no_cross", d.Info["reason"])

	d, err = s.Evaluate(ctx, Context{History: series(prices[:8]...)})
	require.NoError(t, err)
	assert.Equal(t, models.SignalBuy, d.Kind)
	assert.Equal(t, "golden_cross", d.Info["reason"])
	assert.Equal(t, 7.0, d.Info["short_ma"])
	assert.Equal(t, 6.4, d.Info["long_ma"])
}

func TestMACrossoverDeathCross(t *testing.T) {
	s, err := DefaultRegistry().Build(MACrossoverName, map[string]any{"short_window": 2, "long_window": 5})
	require.NoError(t, err)

	// Rising then falling: short MA drops below long MA on the last point.
	d, err := s.Evaluate(context.Background(), Context{History: series(5, 6, 7, 8, 9, 10, 9, 6)})
	require.NoError(t, err)
	assert.Equal(t, models.SignalSell, d.Kind)
	assert.Equal(t, "death_cross", d.Info["reason"])
}

func TestRandomStrategyIsDeterministic(t *testing.T) {
	r := DefaultRegistry()
	a, err := r.Build(RandomName, map[string]any{"seed": 7, "buy_probability": 0.4, "sell_probability": 0.4})
	require.NoError(t, err)
	b, err := r.Build(RandomName, map[string]any{"seed": 7, "buy_probability": 0.4, "sell_probability": 0.4})
	require.NoError(t, err)

	history := series(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	kinds := map[models.SignalKind]int{}
	for i := 1; i <= len(history); i++ {
		da, err := a.Evaluate(context.Background(), Context{History: history[:i]})
		require.NoError(t, err)
		db, err := b.Evaluate(context.Background(), Context{History: history[:i]})
		require.NoError(t, err)
		assert.Equal(t, da, db)
		kinds[da.Kind]++
	}
	assert.Equal(t, len(history), kinds[models.SignalBuy]+kinds[models.SignalSell]+kinds[models.SignalHold])
}

func TestRSIReversionSignals(t *testing.T) {
	s, err := DefaultRegistry().Build(RSIReversionName, map[string]any{"period": 3})
	require.NoError(t, err)

	d, err := s.Evaluate(context.Background(), Context{History: series(10, 9, 8, 7, 6, 5)})
	require.NoError(t, err)
	assert.Equal(t, models.SignalBuy, d.Kind)

	d, err = s.Evaluate(context.Background(), Context{History: series(5, 6, 7, 8, 9, 10)})
	require.NoError(t, err)
	assert.Equal(t, models.SignalSell, d.Kind)
}

func TestMultiFactorStopLossAndTakeProfit(t *testing.T) {
	s, err := DefaultRegistry().Build(MultiFactorName, nil)
	require.NoError(t, err)

	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i%3)
	}

	prices[len(prices)-1] = 90
	d, err := s.Evaluate(context.Background(), Context{History: series(prices...), Position: 10, EntryPrice: 100})
	require.NoError(t, err)
	assert.Equal(t, models.SignalSell, d.Kind)
	assert.Equal(t, "stop_loss_10.00%", d.Info["reason"])

	prices[len(prices)-1] = 115
	d, err = s.Evaluate(context.Background(), Context{History: series(prices...), Position: 10, EntryPrice: 100})
	require.NoError(t, err)
	assert.Equal(t, models.SignalSell, d.Kind)
	assert.Equal(t, "take_profit_15.00%", d.Info["reason"])
}

func TestMultiFactorIgnoresExitRulesWhenFlat(t *testing.T) {
	s, err := DefaultRegistry().Build(MultiFactorName, nil)
	require.NoError(t, err)

	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i%3)
	}
	prices[len(prices)-1] = 90

	d, err := s.Evaluate(context.Background(), Context{History: series(prices...)})
	require.NoError(t, err)
	assert.NotEqual(t, models.SignalSell, d.Kind)
	assert.Contains(t, d.Info, "signal_strength")
}
