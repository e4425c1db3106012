package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/yourusername/quantopia/internal/models"
)

// MultiFactorName is the registry key of the combined MA/RSI/MACD strategy
const MultiFactorName = "multi_factor"

// Factor weights used for signal strength
const (
	maWeight   = 0.4
	rsiWeight  = 0.3
	macdWeight = 0.3
)

// MultiFactorStrategy combines a moving-average crossover with RSI and MACD filters
// and exits early on stop-loss or take-profit relative to the entry price.
type MultiFactorStrategy struct {
	BaseStrategy
	shortMA       int
	longMA        int
	rsiPeriod     int
	rsiOversold   float64
	rsiOverbought float64
	rsiExtreme    float64
	macdFast      int
	macdSlow      int
	macdSignal    int
	stopLossPct   float64
	takeProfitPct float64
}

// MultiFactorDefinition returns the registry definition
func MultiFactorDefinition() Definition {
	return Definition{
		Name:        MultiFactorName,
		Description: "Multi-factor: MA crossover confirmed by RSI and MACD, with stop-loss and take-profit exits.",
		Params: []ParamSpec{
			IntParam("short_ma", 5, 2, 50, "short moving-average window"),
			IntParam("long_ma", 20, 5, 200, "long moving-average window"),
			IntParam("rsi_period", 14, 5, 50, "RSI period"),
			FloatParam("rsi_oversold", 30, 0, 50, "RSI oversold level"),
			FloatParam("rsi_overbought", 70, 50, 100, "RSI overbought level; buys are skipped above it"),
			FloatParam("rsi_extreme", 80, 50, 100, "RSI level that forces an exit while holding"),
			IntParam("macd_fast", 12, 5, 50, "MACD fast EMA period"),
			IntParam("macd_slow", 26, 10, 100, "MACD slow EMA period"),
			IntParam("macd_signal", 9, 2, 50, "MACD signal EMA period"),
			FloatParam("stop_loss_pct", 5, 0, 100, "exit when price falls this many percent below entry"),
			FloatParam("take_profit_pct", 10, 0, 1000, "exit when price rises this many percent above entry"),
		},
		Validate: func(p Params) error {
			if p.Int("short_ma") >= p.Int("long_ma") {
				return models.NewConfigurationError("params.short_ma", "must be less than long_ma")
			}
			if p.Int("macd_fast") >= p.Int("macd_slow") {
				return models.NewConfigurationError("params.macd_fast", "must be less than macd_slow")
			}
			if p.Float("rsi_oversold") >= p.Float("rsi_overbought") {
				return models.NewConfigurationError("params.rsi_oversold", "must be below rsi_overbought")
			}
			return nil
		},
		New: func(p Params) (Strategy, error) {
			return NewMultiFactorStrategy(p), nil
		},
	}
}

// NewMultiFactorStrategy creates the strategy from resolved parameters
func NewMultiFactorStrategy(p Params) *MultiFactorStrategy {
	return &MultiFactorStrategy{
		BaseStrategy:  BaseStrategy{name: MultiFactorName, params: p},
		shortMA:       p.Int("short_ma"),
		longMA:        p.Int("long_ma"),
		rsiPeriod:     p.Int("rsi_period"),
		rsiOversold:   p.Float("rsi_oversold"),
		rsiOverbought: p.Float("rsi_overbought"),
		rsiExtreme:    p.Float("rsi_extreme"),
		macdFast:      p.Int("macd_fast"),
		macdSlow:      p.Int("macd_slow"),
		macdSignal:    p.Int("macd_signal"),
		stopLossPct:   p.Float("stop_loss_pct"),
		takeProfitPct: p.Float("take_profit_pct"),
	}
}

func (s *MultiFactorStrategy) minRequired() int {
	required := s.longMA
	if v := s.macdSlow + s.macdSignal; v > required {
		required = v
	}
	if s.rsiPeriod > required {
		required = s.rsiPeriod
	}
	return required
}

// Evaluate implements Strategy
func (s *MultiFactorStrategy) Evaluate(_ context.Context, sc Context) (Decision, error) {
	required := s.minRequired()
	if len(sc.History) < required+1 {
		d := Hold("insufficient_data")
		d.Info["required"] = required + 1
		d.Info["current"] = len(sc.History)
		return d, nil
	}

	prices := tail(sc.History, required*4)
	n := len(prices)
	price := prices[n-1]

	shortMA := talib.Sma(prices, s.shortMA)
	longMA := talib.Sma(prices, s.longMA)
	rsiSeries := talib.Rsi(prices, s.rsiPeriod)
	macdLine, signalLine, hist := talib.Macd(prices, s.macdFast, s.macdSlow, s.macdSignal)
	if len(rsiSeries) != n || len(hist) != n {
		return Decision{}, fmt.Errorf("indicator output length mismatch: rsi=%d macd=%d want %d", len(rsiSeries), len(hist), n)
	}
	rsi := rsiSeries[n-1]
	histogram := hist[n-1]
	maSignal := crossed(shortMA[n-2], longMA[n-2], shortMA[n-1], longMA[n-1])

	info := map[string]any{
		"short_ma":      round3(shortMA[n-1]),
		"long_ma":       round3(longMA[n-1]),
		"rsi":           round3(rsi),
		"macd_line":     round3(macdLine[n-1]),
		"signal_line":   round3(signalLine[n-1]),
		"histogram":     round3(histogram),
		"current_price": round3(price),
		"ma_signal":     maSignal,
	}
	decide := func(kind models.SignalKind, reason string, strength float64) (Decision, error) {
		info["reason"] = reason
		info["signal_strength"] = round3(strength)
		if sc.EntryPrice > 0 {
			info["entry_price"] = round3(sc.EntryPrice)
		}
		return Decision{Kind: kind, Info: info}, nil
	}

	if sc.Position > 0 && sc.EntryPrice > 0 {
		change := (price - sc.EntryPrice) / sc.EntryPrice * 100
		if change <= -s.stopLossPct {
			return decide(models.SignalSell, fmt.Sprintf("stop_loss_%.2f%%", math.Abs(change)), 1)
		}
		if change >= s.takeProfitPct {
			return decide(models.SignalSell, fmt.Sprintf("take_profit_%.2f%%", change), 1)
		}
	}

	strength := s.signalStrength(maSignal, rsi, histogram, price)
	switch {
	case maSignal == 1 && sc.Position == 0:
		if rsi < s.rsiOverbought && histogram > -price*0.001 {
			return decide(models.SignalBuy, "multi_factor_buy_golden_cross", strength)
		}
		return decide(models.SignalHold, "golden_cross_filtered", strength)
	case maSignal == -1 && sc.Position > 0:
		return decide(models.SignalSell, "multi_factor_sell_death_cross", strength)
	case sc.Position > 0 && rsi > s.rsiExtreme:
		return decide(models.SignalSell, "rsi_extreme_overbought", strength)
	}
	if maSignal == 0 {
		return decide(models.SignalHold, "no_cross", strength)
	}
	return decide(models.SignalHold, "cross_without_action", strength)
}

// signalStrength scores agreement between the factors in [0,1]
func (s *MultiFactorStrategy) signalStrength(maSignal int, rsi, histogram, price float64) float64 {
	strength := 0.0
	if maSignal != 0 {
		strength += maWeight
	}

	var rsiStrength float64
	switch maSignal {
	case 1:
		rsiStrength = math.Max(0, (s.rsiOversold-rsi)/s.rsiOversold)
	case -1:
		rsiStrength = math.Max(0, (rsi-s.rsiOverbought)/(100-s.rsiOverbought))
	default:
		rsiStrength = 0.5
	}
	strength += rsiWeight * rsiStrength

	macdStrength := 0.3
	if price > 0 && ((maSignal == 1 && histogram > 0) || (maSignal == -1 && histogram < 0)) {
		macdStrength = math.Min(1, math.Abs(histogram)/(price*0.01))
	}
	strength += macdWeight * macdStrength

	return clamp01(strength / (maWeight + rsiWeight + macdWeight))
}
