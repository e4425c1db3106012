package strategy

import (
	"context"
	"math/rand"

	"github.com/yourusername/quantopia/internal/models"
)

// RandomName is the registry key of the seeded random strategy
const RandomName = "random"

// RandomStrategy emits buy and sell signals with fixed probabilities. The draw for a
// given history length depends only on the seed, so replays are reproducible.
type RandomStrategy struct {
	BaseStrategy
	seed     int64
	buyProb  float64
	sellProb float64
}

// RandomDefinition returns the registry definition
func RandomDefinition() Definition {
	return Definition{
		Name:        RandomName,
		Description: "Seeded random baseline for benchmarking and replay tests.",
		Params: []ParamSpec{
			IntParam("seed", 42, 0, 1<<31-1, "random seed"),
			FloatParam("buy_probability", 0.1, 0, 1, "probability of a buy signal per tick"),
			FloatParam("sell_probability", 0.1, 0, 1, "probability of a sell signal per tick"),
		},
		Validate: func(p Params) error {
			if p.Float("buy_probability")+p.Float("sell_probability") > 1 {
				return models.NewConfigurationError("params.buy_probability", "buy and sell probabilities must sum to at most 1")
			}
			return nil
		},
		New: func(p Params) (Strategy, error) {
			return &RandomStrategy{
				BaseStrategy: BaseStrategy{name: RandomName, params: p},
				seed:         int64(p.Int("seed")),
				buyProb:      p.Float("buy_probability"),
				sellProb:     p.Float("sell_probability"),
			}, nil
		},
	}
}

// Evaluate implements Strategy
func (s *RandomStrategy) Evaluate(_ context.Context, sc Context) (Decision, error) {
	rng := rand.New(rand.NewSource(s.seed*1_000_003 + int64(len(sc.History))))
	draw := rng.Float64()

	kind := models.SignalHold
	switch {
	case draw < s.buyProb:
		kind = models.SignalBuy
	case draw < s.buyProb+s.sellProb:
		kind = models.SignalSell
	}
	return Decision{Kind: kind, Info: map[string]any{"draw": round3(draw)}}, nil
}
