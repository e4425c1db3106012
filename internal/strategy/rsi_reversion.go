package strategy

import (
	"context"

	"github.com/markcheno/go-talib"

	"github.com/yourusername/quantopia/internal/models"
)

// RSIReversionName is the registry key of the RSI mean-reversion strategy
const RSIReversionName = "rsi_reversion"

// rsiWarmup bounds how much history feeds Wilder smoothing, in multiples of the period
const rsiWarmup = 10

// RSIReversionStrategy buys when RSI drops below the oversold level and sells when it
// rises above the overbought level
type RSIReversionStrategy struct {
	BaseStrategy
	period     int
	oversold   float64
	overbought float64
}

// RSIReversionDefinition returns the registry definition
func RSIReversionDefinition() Definition {
	return Definition{
		Name:        RSIReversionName,
		Description: "RSI mean reversion: buy when oversold, sell when overbought.",
		Params: []ParamSpec{
			IntParam("period", 14, 2, 100, "RSI period in ticks"),
			FloatParam("oversold", 30, 0, 50, "buy below this RSI"),
			FloatParam("overbought", 70, 50, 100, "sell above this RSI"),
		},
		Validate: func(p Params) error {
			if p.Float("oversold") >= p.Float("overbought") {
				return models.NewConfigurationError("params.oversold", "must be below overbought")
			}
			return nil
		},
		New: func(p Params) (Strategy, error) {
			return &RSIReversionStrategy{
				BaseStrategy: BaseStrategy{name: RSIReversionName, params: p},
				period:       p.Int("period"),
				oversold:     p.Float("oversold"),
				overbought:   p.Float("overbought"),
			}, nil
		},
	}
}

// Evaluate implements Strategy
func (s *RSIReversionStrategy) Evaluate(_ context.Context, sc Context) (Decision, error) {
	if len(sc.History) < s.period+1 {
		return Hold("insufficient_data"), nil
	}

	series := talib.Rsi(tail(sc.History, s.period*rsiWarmup+1), s.period)
	rsi := series[len(series)-1]

	kind, reason := models.SignalHold, "neutral"
	switch {
	case rsi < s.oversold:
		kind, reason = models.SignalBuy, "oversold"
	case rsi > s.overbought:
		kind, reason = models.SignalSell, "overbought"
	}
	return Decision{Kind: kind, Info: map[string]any{"reason": reason, "rsi": round3(rsi)}}, nil
}
