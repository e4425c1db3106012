package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantopia/internal/models"
)

func trade(index int64, kind models.SignalKind, price, qty, commission float64) models.Trade {
	return models.Trade{Index: index, Kind: kind, Price: price, Quantity: qty, Commission: commission}
}

func TestFIFOPairing(t *testing.T) {
	trades := []models.Trade{
		trade(0, models.SignalBuy, 100, 10, 1),
		trade(1, models.SignalBuy, 110, 10, 1),
		trade(3, models.SignalSell, 120, 10, 1),
		trade(7, models.SignalSell, 90, 10, 1),
	}

	tr := NewTracker(10000, Options{})
	for _, x := range trades {
		tr.ObserveTrade(x)
	}

	pairs := tr.Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, int64(0), pairs[0].BuyIndex)
	assert.InDelta(t, 198.0, pairs[0].Profit, 1e-9)
	assert.True(t, pairs[0].Won())
	assert.Equal(t, int64(1), pairs[1].BuyIndex)
	assert.InDelta(t, -202.0, pairs[1].Profit, 1e-9)
	assert.False(t, pairs[1].Won())

	s := tr.Stats(10000, 0, 90)
	assert.Equal(t, 50.0, s.WinRate)
	assert.Equal(t, 1, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.Equal(t, 2, s.TotalTradePairs)
	assert.Equal(t, 2, s.BuyCount)
	assert.Equal(t, 2, s.SellCount)
	assert.Equal(t, 4, s.TotalTrades)
	assert.InDelta(t, 198.0/202.0, s.ProfitLossRatio, 1e-9)
	// holding periods 3 and 6 ticks
	assert.InDelta(t, 4.5, s.AvgHoldingPeriod, 1e-9)
	assert.Zero(t, tr.OpenQuantity())
}

func TestFIFOPartialLots(t *testing.T) {
	tr := NewTracker(0, Options{})
	tr.ObserveTrade(trade(0, models.SignalBuy, 10, 5, 0))
	tr.ObserveTrade(trade(1, models.SignalBuy, 20, 5, 0))
	tr.ObserveTrade(trade(2, models.SignalSell, 15, 8, 0))

	pairs := tr.Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, 5.0, pairs[0].Quantity)
	assert.InDelta(t, 25.0, pairs[0].Profit, 1e-9)
	assert.Equal(t, 3.0, pairs[1].Quantity)
	assert.InDelta(t, -15.0, pairs[1].Profit, 1e-9)
	assert.Equal(t, 2.0, tr.OpenQuantity())
}

func TestBreakEvenPairCountsAsWin(t *testing.T) {
	tr := NewTracker(0, Options{})
	tr.ObserveTrade(trade(0, models.SignalBuy, 10, 1, 0))
	tr.ObserveTrade(trade(1, models.SignalSell, 10, 1, 0))

	s := tr.Stats(0, 0, 10)
	assert.Equal(t, 100.0, s.WinRate)
	// no losses but no positive win either
	assert.Equal(t, 0.0, s.ProfitLossRatio)
}

func TestProfitLossSentinel(t *testing.T) {
	tr := NewTracker(0, Options{})
	tr.ObserveTrade(trade(0, models.SignalBuy, 10, 1, 0))
	tr.ObserveTrade(trade(1, models.SignalSell, 12, 1, 0))

	assert.Equal(t, ProfitLossSentinel, tr.Stats(0, 0, 12).ProfitLossRatio)
}

func TestMaxDrawdownUsesRunningPeak(t *testing.T) {
	tr := NewTracker(100, Options{})
	for _, v := range []float64{100, 120, 90, 130, 80} {
		tr.ObserveEquity(v)
	}
	s := tr.Stats(80, 0, 0)
	assert.InDelta(t, 50.0/130.0*100, s.MaxDrawdownPct, 1e-9)
	assert.Equal(t, 50.0, s.MaxDrawdown)

	tr = NewTracker(100, Options{})
	for _, v := range []float64{100, 120, 90, 110, 80} {
		tr.ObserveEquity(v)
	}
	assert.InDelta(t, 33.333, tr.Stats(80, 0, 0).MaxDrawdownPct, 1e-3)
}

func TestSharpeRatio(t *testing.T) {
	tests := []struct {
		name   string
		equity []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single return", []float64{100, 110}, 0},
		{"flat", []float64{100, 100, 100}, 0},
		// returns +0.1, -0.1: mean 0
		{"symmetric", []float64{100, 110, 99}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(100, Options{})
			for _, v := range tt.equity {
				tr.ObserveEquity(v)
			}
			assert.InDelta(t, tt.want, tr.Stats(0, 0, 0).SharpeRatio, 1e-9)
		})
	}
}

func TestSharpeRatioAnnualisation(t *testing.T) {
	equity := []float64{100, 101, 103, 102, 105}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))

	daily := Compute(100, nil, equity, nil, 105, 0, Options{})
	assert.InDelta(t, mean/std*math.Sqrt(252), daily.SharpeRatio, 1e-9)

	hourly := Compute(100, nil, equity, nil, 105, 0, Options{PeriodsPerYear: 252 * 6.5})
	assert.InDelta(t, mean/std*math.Sqrt(252*6.5), hourly.SharpeRatio, 1e-9)
}

func TestReturnsSkipNonPositivePrevious(t *testing.T) {
	tr := NewTracker(100, Options{})
	for _, v := range []float64{0, 100, 110, 121} {
		tr.ObserveEquity(v)
	}
	// only 100->110 and 110->121 contribute: identical returns, zero deviation
	assert.Equal(t, 0.0, tr.Stats(121, 0, 0).SharpeRatio)
}

func TestIncrementalMatchesBatch(t *testing.T) {
	prices := []float64{100, 102, 99, 97, 103, 108, 104, 101, 110, 107}
	trades := []models.Trade{
		trade(1, models.SignalBuy, 102, 20, 2),
		trade(3, models.SignalBuy, 97, 10, 1),
		trade(5, models.SignalSell, 108, 30, 3),
		trade(7, models.SignalBuy, 101, 15, 1.5),
	}

	cash, position := 10000.0, 0.0
	equity := make([]float64, len(prices))
	live := NewTracker(cash, Options{})
	next := 0
	for i, p := range prices {
		live.ObservePrice(p)
		for next < len(trades) && trades[next].Index == int64(i) {
			tr := trades[next]
			if tr.Kind == models.SignalBuy {
				cash -= tr.Notional() + tr.Commission
				position += tr.Quantity
			} else {
				cash += tr.Notional() - tr.Commission
				position -= tr.Quantity
			}
			live.ObserveTrade(tr)
			next++
		}
		equity[i] = cash + position*p
		live.ObserveEquity(equity[i])
	}

	incremental := live.Stats(cash, position, prices[len(prices)-1])
	batch := Compute(10000, trades, equity, prices, cash, position, Options{})
	assert.Equal(t, batch, incremental)

	assert.Equal(t, 100.0, batch.InitialPrice)
	assert.Equal(t, 107.0, batch.FinalPrice)
	assert.Equal(t, 110.0, batch.MaxPrice)
	assert.Equal(t, 97.0, batch.MinPrice)
	assert.InDelta(t, 7.0, batch.PriceChangePct, 1e-9)
	assert.InDelta(t, batch.FinalValue-10000, batch.TotalReturn, 1e-9)
}

func TestEmptyRun(t *testing.T) {
	s := Compute(5000, nil, nil, nil, 5000, 0, Options{})
	assert.Equal(t, models.RunStats{InitialCash: 5000, FinalCash: 5000, FinalValue: 5000}, s)
}

func TestPairTradesKeepsEveryPair(t *testing.T) {
	trades := make([]models.Trade, 0, 2*(maxRecentPairs+10))
	for i := 0; i < maxRecentPairs+10; i++ {
		trades = append(trades,
			trade(int64(2*i), models.SignalBuy, 10, 1, 0),
			trade(int64(2*i+1), models.SignalSell, 11, 1, 0),
		)
	}
	assert.Len(t, PairTrades(trades), maxRecentPairs+10)

	tr := NewTracker(0, Options{})
	for _, x := range trades {
		tr.ObserveTrade(x)
	}
	pairs := tr.Pairs()
	require.Len(t, pairs, maxRecentPairs)
	assert.Equal(t, int64(2*(maxRecentPairs+9)+1), pairs[len(pairs)-1].SellIndex)
	assert.Equal(t, maxRecentPairs+10, tr.Stats(0, 0, 11).TotalTradePairs)
}
