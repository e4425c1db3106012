package backtest

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/stats"
	"github.com/yourusername/quantopia/internal/strategy"
)

// scriptedStrategy replays a fixed signal per index and records what it was shown
type scriptedStrategy struct {
	script  map[int]models.SignalKind
	failAt  int
	lengths []int
	caps    []int
}

func (s *scriptedStrategy) Name() string                   { return "scripted" }
func (s *scriptedStrategy) GetParameters() strategy.Params { return strategy.Params{"n": len(s.script)} }
func (s *scriptedStrategy) Evaluate(_ context.Context, sc strategy.Context) (strategy.Decision, error) {
	i := len(sc.History) - 1
	s.lengths = append(s.lengths, len(sc.History))
	s.caps = append(s.caps, cap(sc.History))
	if s.failAt > 0 && i == s.failAt {
		return strategy.Decision{}, errors.New("indicator blew up")
	}
	if kind, ok := s.script[i]; ok {
		return strategy.Decision{Kind: kind, Info: map[string]any{"reason": "scripted"}}, nil
	}
	return strategy.Hold("idle"), nil
}

func randomWalk(n int, seed int64) []models.PricePoint {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	price := 100.0
	out := make([]models.PricePoint, n)
	for i := range out {
		price = math.Max(1, price*(1+rng.NormFloat64()*0.01))
		out[i] = models.PricePoint{
			Seq:       int64(i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Price:     math.Round(price*1000) / 1000,
			Session:   models.SessionRegular,
		}
	}
	return out
}

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	return engine
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"cash", func(c *Config) { c.InitialCash = 0 }, "initial_cash"},
		{"lot", func(c *Config) { c.LotSize = 0 }, "lot_size"},
		{"ratio", func(c *Config) { c.MaxPositionRatio = 1.5 }, "max_position_ratio"},
		{"commission", func(c *Config) { c.Commission.Flat = -1 }, "commission.flat"},
		{"periods", func(c *Config) { c.PeriodsPerYear = -1 }, "periods_per_year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewEngine(cfg, nil)
			var cfgErr *models.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRunScriptedTrades(t *testing.T) {
	engine := newTestEngine(t, func(c *Config) {
		c.InitialCash = 1000
		c.Commission = models.Commission{}
		c.LotSize = 5
	})
	series := []models.PricePoint{{Price: 10}, {Price: 12}, {Price: 11}, {Price: 15}, {Price: 14}}
	strat := &scriptedStrategy{script: map[int]models.SignalKind{1: models.SignalBuy, 2: models.SignalBuy, 3: models.SignalSell}}

	result, err := engine.Run(context.Background(), series, strat)
	require.NoError(t, err)

	require.Len(t, result.Signals, len(series))
	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]
	assert.Equal(t, int64(1), buy.Index)
	// 1000/12 = 83.3 shares, rounded down to 80
	assert.Equal(t, 80.0, buy.Quantity)
	assert.Equal(t, 40.0, buy.CashAfter)
	assert.Equal(t, "scripted", buy.Note)
	assert.Equal(t, int64(3), sell.Index)
	assert.Equal(t, 80.0, sell.Quantity)
	assert.Equal(t, 1240.0, sell.CashAfter)

	s := result.Stats
	assert.Equal(t, 1240.0, s.FinalValue)
	assert.InDelta(t, 24.0, s.TotalReturnPct, 1e-9)
	assert.Equal(t, 1, s.BuyCount)
	assert.Equal(t, 1, s.SellCount)
	assert.Equal(t, 100.0, s.WinRate)
	assert.Equal(t, 2.0, s.AvgHoldingPeriod)

	require.Len(t, result.EquityCurve, len(series))
	assert.Equal(t, 40.0+80*11, result.EquityCurve[2].Value)
	assert.Equal(t, 80.0, result.EquityCurve[2].Position)
}

func TestRunHasNoLookAhead(t *testing.T) {
	engine := newTestEngine(t, nil)
	strat := &scriptedStrategy{}
	series := randomWalk(25, 1)

	_, err := engine.Run(context.Background(), series, strat)
	require.NoError(t, err)

	require.Len(t, strat.lengths, len(series))
	for i := range series {
		assert.Equal(t, i+1, strat.lengths[i])
		assert.Equal(t, i+1, strat.caps[i], "history must not expose later points through its capacity")
	}
}

func TestRunIsDeterministic(t *testing.T) {
	engine := newTestEngine(t, func(c *Config) { c.Commission = models.Commission{Flat: 1, Rate: 0.001} })
	registry := strategy.DefaultRegistry()
	series := randomWalk(500, 7)

	for _, name := range []string{strategy.RandomName, strategy.MultiFactorName, strategy.MACrossoverName} {
		t.Run(name, func(t *testing.T) {
			params := map[string]any{}
			if name == strategy.RandomName {
				params = map[string]any{"seed": 99, "buy_probability": 0.2, "sell_probability": 0.2}
			}
			first, err := engine.RunNamed(context.Background(), series, registry, name, params)
			require.NoError(t, err)
			second, err := engine.RunNamed(context.Background(), series, registry, name, params)
			require.NoError(t, err)

			a, err := first.ToJSON()
			require.NoError(t, err)
			b, err := second.ToJSON()
			require.NoError(t, err)
			assert.True(t, bytes.Equal(a, b), "two runs must encode identically")
			assert.Equal(t, first.ParamsHash, second.ParamsHash)
			if name == strategy.RandomName {
				assert.NotEmpty(t, first.Trades)
			}
		})
	}
}

func TestRunPortfolioInvariants(t *testing.T) {
	registry := strategy.DefaultRegistry()
	series := randomWalk(800, 3)
	configs := []func(*Config){
		func(c *Config) { c.LotSize = 1 },
		func(c *Config) { c.LotSize = 7; c.MaxPositionRatio = 0.4 },
		func(c *Config) { c.LotSize = 100; c.Commission = models.Commission{Rate: 0.003} },
		func(c *Config) { c.InitialCash = 50; c.Commission = models.Commission{Flat: 20} },
	}

	for i, mutate := range configs {
		engine := newTestEngine(t, mutate)
		result, err := engine.RunNamed(context.Background(), series, registry, strategy.RandomName,
			map[string]any{"seed": i, "buy_probability": 0.3, "sell_probability": 0.3})
		require.NoError(t, err)

		lot := engine.Config().LotSize
		bought, sold := 0.0, 0.0
		cash := engine.Config().InitialCash
		for j, tr := range result.Trades {
			assert.GreaterOrEqual(t, tr.CashAfter, 0.0)
			assert.GreaterOrEqual(t, tr.PositionAfter, 0.0)
			assert.InDelta(t, 0, math.Mod(tr.Quantity, lot), 1e-9)
			if j > 0 {
				assert.Greater(t, tr.Index, result.Trades[j-1].Index)
				assert.True(t, tr.Timestamp.After(result.Trades[j-1].Timestamp))
			}
			if tr.Kind == models.SignalBuy {
				assert.LessOrEqual(t, tr.Notional()+tr.Commission, engine.Config().MaxPositionRatio*cash+1e-9)
				bought += tr.Quantity
			} else {
				sold += tr.Quantity
			}
			cash = tr.CashAfter
		}
		for _, p := range result.EquityCurve {
			assert.GreaterOrEqual(t, p.Cash, 0.0)
			assert.GreaterOrEqual(t, p.Position, 0.0)
		}
		if result.Stats.FinalPosition == 0 {
			assert.Equal(t, bought, sold)
		} else {
			assert.Equal(t, bought-sold, result.Stats.FinalPosition)
		}
	}
}

func TestRunStatsMatchBatchCompute(t *testing.T) {
	engine := newTestEngine(t, nil)
	series := randomWalk(300, 11)
	result, err := engine.RunNamed(context.Background(), series, strategy.DefaultRegistry(), strategy.RandomName,
		map[string]any{"buy_probability": 0.25, "sell_probability": 0.25})
	require.NoError(t, err)

	batch := stats.Compute(engine.Config().InitialCash, result.Trades, result.EquityCurve.Values(), models.Prices(series),
		result.Stats.FinalCash, result.Stats.FinalPosition, stats.Options{})
	assert.Equal(t, batch, result.Stats)
}

func TestRunEmptySeries(t *testing.T) {
	engine := newTestEngine(t, nil)
	result, err := engine.Run(context.Background(), nil, &scriptedStrategy{})
	require.NoError(t, err)
	assert.Empty(t, result.Signals)
	assert.Empty(t, result.Trades)
	assert.Empty(t, result.EquityCurve)
	assert.Equal(t, models.DefaultInitialCash, result.Stats.FinalValue)
	assert.Zero(t, result.Stats.TotalReturn)

	data, err := result.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"signals":[]`)
}

func TestRunStrategyErrorAborts(t *testing.T) {
	engine := newTestEngine(t, nil)
	strat := &scriptedStrategy{failAt: 3, script: map[int]models.SignalKind{1: models.SignalBuy}}

	result, err := engine.Run(context.Background(), randomWalk(10, 2), strat)
	assert.Nil(t, result)
	var stratErr *models.StrategyError
	require.ErrorAs(t, err, &stratErr)
	assert.Equal(t, int64(3), stratErr.Index)
	assert.Equal(t, "scripted", stratErr.Strategy)
	assert.Len(t, strat.lengths, 4)
}

func TestRunRejectsUnknownSignal(t *testing.T) {
	engine := newTestEngine(t, nil)
	strat := &scriptedStrategy{script: map[int]models.SignalKind{0: "short"}}
	_, err := engine.Run(context.Background(), randomWalk(3, 2), strat)
	assert.True(t, models.IsStrategyError(err))
}

func TestRunHonoursCancellation(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Run(ctx, randomWalk(10, 2), &scriptedStrategy{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNamedUnknownStrategy(t *testing.T) {
	engine := newTestEngine(t, nil)
	_, err := engine.RunNamed(context.Background(), randomWalk(10, 2), strategy.DefaultRegistry(), "nope", nil)
	assert.ErrorIs(t, err, models.ErrStrategyNotFound)
}

func TestSweepPreservesGridOrder(t *testing.T) {
	engine := newTestEngine(t, nil)
	series := randomWalk(400, 5)
	grid := []map[string]any{
		{"short_window": 3, "long_window": 10},
		{"short_window": 5, "long_window": 20},
		{"short_window": 10, "long_window": 40},
		{"short_window": 2, "long_window": 5},
	}

	results, err := engine.Sweep(context.Background(), series, strategy.DefaultRegistry(), strategy.MACrossoverName, grid, 3)
	require.NoError(t, err)
	require.Len(t, results, len(grid))
	for i, r := range results {
		assert.Equal(t, grid[i]["short_window"], r.Params.Int("short_window"))
		sequential, err := engine.RunNamed(context.Background(), series, strategy.DefaultRegistry(), strategy.MACrossoverName, grid[i])
		require.NoError(t, err)
		assert.Equal(t, sequential.Stats, r.Stats)
	}

	best := Best(results)
	require.NotNil(t, best)
	for _, r := range results {
		assert.LessOrEqual(t, r.Stats.TotalReturnPct, best.Stats.TotalReturnPct)
	}
}

func TestSweepRejectsBadGrid(t *testing.T) {
	engine := newTestEngine(t, nil)
	_, err := engine.Sweep(context.Background(), randomWalk(50, 5), strategy.DefaultRegistry(), strategy.MACrossoverName,
		[]map[string]any{{"short_window": 3}, {"short_window": 40, "long_window": 10}}, 2)
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "grid entry 1")
}

func TestWalkForward(t *testing.T) {
	engine := newTestEngine(t, nil)
	series := randomWalk(600, 8)
	strat, err := strategy.DefaultRegistry().Build(strategy.RandomName, map[string]any{"buy_probability": 0.2, "sell_probability": 0.2})
	require.NoError(t, err)

	wf, err := engine.RunWalkForward(context.Background(), series, strat, WalkForwardConfig{Windows: 4})
	require.NoError(t, err)
	require.Len(t, wf.Windows, 4)
	assert.Equal(t, 0, wf.Windows[0].Start)
	assert.Equal(t, 150, wf.Windows[1].Start)
	assert.Equal(t, 600, wf.Windows[3].End)
	assert.GreaterOrEqual(t, wf.ConsistencyScore, 0.0)
	assert.LessOrEqual(t, wf.ConsistencyScore, 1.0)
	for _, w := range wf.Windows {
		assert.Equal(t, models.DefaultInitialCash, w.Stats.InitialCash)
	}

	_, err = engine.RunWalkForward(context.Background(), series[:3], strat, WalkForwardConfig{Windows: 4})
	assert.Error(t, err)

	filtered, err := engine.RunWalkForward(context.Background(), series, strat, WalkForwardConfig{Windows: 4, MinTradesPerWindow: 1 << 20})
	require.NoError(t, err)
	assert.Empty(t, filtered.Windows)
}

func TestMonteCarloIsSeeded(t *testing.T) {
	engine := newTestEngine(t, nil)
	result, err := engine.RunNamed(context.Background(), randomWalk(500, 9), strategy.DefaultRegistry(), strategy.RandomName,
		map[string]any{"buy_probability": 0.2, "sell_probability": 0.2})
	require.NoError(t, err)

	a, err := RunMonteCarlo(context.Background(), result, MonteCarloConfig{Iterations: 200, Seed: 5})
	require.NoError(t, err)
	b, err := RunMonteCarlo(context.Background(), result, MonteCarloConfig{Iterations: 200, Seed: 5})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, len(stats.PairTrades(result.Trades)), a.Pairs)
	assert.LessOrEqual(t, a.Percentile5, a.MeanFinalValue)
	assert.GreaterOrEqual(t, a.Percentile95, a.MeanFinalValue)
	assert.Contains(t, a.ConfidenceIntervals, "95%")
	assert.Nil(t, a.Distribution)

	empty, err := RunMonteCarlo(context.Background(), &Result{Stats: models.RunStats{InitialCash: 10}}, MonteCarloConfig{})
	require.NoError(t, err)
	assert.Equal(t, 10.0, empty.MeanFinalValue)
	assert.Zero(t, empty.ProbabilityOfLoss)
}

func TestCurveDrawdownMatchesStatsWhenFirstBarTrades(t *testing.T) {
	engine := newTestEngine(t, func(c *Config) {
		c.InitialCash = 1000
		c.Commission = models.Commission{Flat: 5}
	})
	series := []models.PricePoint{{Price: 10}, {Price: 10}, {Price: 9}, {Price: 10}}
	strat := &scriptedStrategy{script: map[int]models.SignalKind{0: models.SignalBuy}}

	result, err := engine.Run(context.Background(), series, strat)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	require.Equal(t, int64(0), result.Trades[0].Index)

	assert.Zero(t, result.EquityCurve[0].Drawdown, "the first sample is its own peak")
	maxDD := 0.0
	for _, p := range result.EquityCurve {
		maxDD = math.Max(maxDD, p.Drawdown)
	}
	assert.InDelta(t, result.Stats.MaxDrawdownPct, maxDD*100, 1e-9)
}

func TestRiskMetrics(t *testing.T) {
	curve := EquityCurve{}
	for _, v := range []float64{100, 110, 99, 105, 95} {
		curve = append(curve, EquityPoint{Value: v})
	}
	peak := 0.0
	for i := range curve {
		peak = math.Max(peak, curve[i].Value)
		curve[i].Drawdown = (peak - curve[i].Value) / peak
	}

	m := CalculateRiskMetrics(curve, 0)
	assert.Greater(t, m.Volatility, 0.0)
	assert.InDelta(t, -0.1, m.ValueAtRisk95, 1e-9)
	assert.NotZero(t, m.SortinoRatio)
	assert.NotZero(t, m.CalmarRatio)

	assert.Equal(t, RiskMetrics{}, CalculateRiskMetrics(nil, 0))
}

func TestReportsAndRecord(t *testing.T) {
	engine := newTestEngine(t, nil)
	result, err := engine.RunNamed(context.Background(), randomWalk(200, 4), strategy.DefaultRegistry(), strategy.MACrossoverName,
		map[string]any{"short_window": 3, "long_window": 8})
	require.NoError(t, err)

	report := GenerateConsoleReport(result)
	assert.Contains(t, report, "Strategy: ma_crossover")
	assert.Contains(t, report, "long_window=8 short_window=3")

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "out", "trades.csv")
	require.NoError(t, ExportTradesCSV(result, tradesPath))
	data, err := os.ReadFile(tradesPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, len(result.Trades)+1)
	assert.True(t, strings.HasPrefix(lines[0], "index,time,kind"))

	summaryPath := filepath.Join(dir, "summary.csv")
	require.NoError(t, GenerateCSVExport(result, summaryPath))
	data, err = os.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "params_hash,"+result.ParamsHash)

	curveCSV := result.EquityCurve.ToCSV()
	assert.Equal(t, len(result.EquityCurve)+1, strings.Count(curveCSV, "\n"))
	assert.True(t, strings.HasPrefix(result.EquityCurve.ToJSON(), "["))

	record, err := result.ToRecord("ds123456", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, result.ParamsHash, record.ParamsHash)
	assert.Equal(t, 200, record.SeriesLength)
	assert.Equal(t, "ds123456", record.DatasetID)
	assert.JSONEq(t, `{"long_window":8,"short_window":3}`, string(record.Params))
}

func TestHashParametersIsStable(t *testing.T) {
	a := HashParameters(map[string]any{"a": 1, "b": 2.5})
	b := HashParameters(map[string]any{"b": 2.5, "a": 1})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashParameters(map[string]any{"a": 2, "b": 2.5}))
	assert.Len(t, a, 64)
}
