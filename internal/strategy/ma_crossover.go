package strategy

import (
	"context"

	"github.com/markcheno/go-talib"

	"github.com/yourusername/quantopia/internal/models"
)

// MACrossoverName is the registry key of the moving-average crossover strategy
const MACrossoverName = "ma_crossover"

// MACrossoverStrategy buys on a golden cross (short MA rising above long MA) and
// sells on a death cross.
type MACrossoverStrategy struct {
	BaseStrategy
	shortWindow int
	longWindow  int
}

// MACrossoverDefinition returns the registry definition
func MACrossoverDefinition() Definition {
	return Definition{
		Name:        MACrossoverName,
		Description: "Moving-average crossover: buy when the short MA crosses above the long MA, sell on the reverse cross.",
		Params: []ParamSpec{
			IntParam("short_window", 5, 2, 50, "short moving-average window in ticks"),
			IntParam("long_window", 20, 5, 200, "long moving-average window in ticks"),
		},
		Validate: func(p Params) error {
			if p.Int("short_window") >= p.Int("long_window") {
				return models.NewConfigurationError("params.short_window", "must be less than long_window (%d >= %d)",
					p.Int("short_window"), p.Int("long_window"))
			}
			return nil
		},
		New: func(p Params) (Strategy, error) {
			return NewMACrossoverStrategy(p), nil
		},
	}
}

// NewMACrossoverStrategy creates the strategy from resolved parameters
func NewMACrossoverStrategy(p Params) *MACrossoverStrategy {
	return &MACrossoverStrategy{
		BaseStrategy: BaseStrategy{name: MACrossoverName, params: p},
		shortWindow:  p.Int("short_window"),
		longWindow:   p.Int("long_window"),
	}
}

// Evaluate implements Strategy
func (s *MACrossoverStrategy) Evaluate(_ context.Context, sc Context) (Decision, error) {
	if len(sc.History) < s.longWindow+1 {
		return Hold("insufficient_data"), nil
	}

	prices := tail(sc.History, s.longWindow+1)
	shortMA := talib.Sma(prices, s.shortWindow)
	longMA := talib.Sma(prices, s.longWindow)
	n := len(prices)

	kind := models.SignalHold
	reason := "no_cross"
	switch crossed(shortMA[n-2], longMA[n-2], shortMA[n-1], longMA[n-1]) {
	case 1:
		kind, reason = models.SignalBuy, "golden_cross"
	case -1:
		kind, reason = models.SignalSell, "death_cross"
	}

	return Decision{
		Kind: kind,
		Info: map[string]any{
			"reason":        reason,
			"short_ma":      round3(shortMA[n-1]),
			"long_ma":       round3(longMA[n-1]),
			"prev_short_ma": round3(shortMA[n-2]),
			"prev_long_ma":  round3(longMA[n-2]),
			"current_price": round3(prices[n-1]),
		},
	}, nil
}
