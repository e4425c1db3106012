// Package dataset generates synthetic price series and stores series as files that
// backtests can replay.
package dataset

import (
	"math"
	"math/rand"
	"time"

	"github.com/yourusername/quantopia/internal/models"
)

// Trend is the overall direction of a generated series
type Trend string

const (
	TrendUp     Trend = "up"
	TrendStable Trend = "stable"
	TrendDown   Trend = "down"
)

// minPrice is the floor applied to every generated price
const minPrice = 0.01

// Options controls the generator. A zero Length, BaseMean, Trend or VolatilityScale
// takes the value from DefaultOptions.
type Options struct {
	Length   int     `json:"length"`
	BaseMean float64 `json:"base_mean"`
	Trend    Trend   `json:"trend"`
	// StartPrice and EndPrice are drawn around BaseMean when nil.
	StartPrice *float64 `json:"start_price,omitempty"`
	EndPrice   *float64 `json:"end_price,omitempty"`
	// VolatilityProb is the chance that a step is a large move.
	VolatilityProb float64 `json:"volatility_prob"`
	// VolatilityScale is the standard deviation of a step as a fraction of BaseMean.
	VolatilityScale float64 `json:"volatility_scale"`
	Seed            *int64  `json:"seed,omitempty"`
}

// DefaultOptions returns the generator defaults
func DefaultOptions() Options {
	return Options{
		Length:          100,
		BaseMean:        100,
		Trend:           TrendStable,
		VolatilityProb:  0.3,
		VolatilityScale: 0.02,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Length == 0 {
		o.Length = d.Length
	}
	if o.BaseMean == 0 {
		o.BaseMean = d.BaseMean
	}
	if o.Trend == "" {
		o.Trend = d.Trend
	}
	if o.VolatilityScale == 0 {
		o.VolatilityScale = d.VolatilityScale
	}
	return o
}

// Validate rejects options the generator cannot honour
func (o Options) Validate() error {
	switch {
	case o.Length < 2:
		return models.NewConfigurationError("length", "must be at least 2, got %d", o.Length)
	case o.BaseMean <= 0:
		return models.NewConfigurationError("base_mean", "must be positive, got %v", o.BaseMean)
	case o.VolatilityProb < 0 || o.VolatilityProb > 1:
		return models.NewConfigurationError("volatility_prob", "must be in [0, 1], got %v", o.VolatilityProb)
	case o.VolatilityScale < 0:
		return models.NewConfigurationError("volatility_scale", "must not be negative, got %v", o.VolatilityScale)
	case o.StartPrice != nil && *o.StartPrice <= 0:
		return models.NewConfigurationError("start_price", "must be positive, got %v", *o.StartPrice)
	case o.EndPrice != nil && *o.EndPrice <= 0:
		return models.NewConfigurationError("end_price", "must be positive, got %v", *o.EndPrice)
	}
	switch o.Trend {
	case TrendUp, TrendStable, TrendDown:
	default:
		return models.NewConfigurationError("trend", "must be one of [up stable down], got %q", o.Trend)
	}
	return nil
}

// Generator produces synthetic series
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate draws a series following opts. The price drifts from the start price
// towards the end price along a straight trend line, with normal noise on every step
// and occasional larger moves. The same seed always yields the same series.
func (g *Generator) Generate(opts Options) (Metadata, []models.PricePoint, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Metadata{}, nil, err
	}

	seed := g.now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	start := opts.BaseMean * (1 + rng.NormFloat64()*0.1)
	if opts.StartPrice != nil {
		start = *opts.StartPrice
	}
	start = math.Max(minPrice, start)

	end := 0.0
	if opts.EndPrice != nil {
		end = *opts.EndPrice
	} else {
		switch opts.Trend {
		case TrendUp:
			end = start * (1 + uniform(rng, 0.05, 0.3))
		case TrendDown:
			end = start * (1 - uniform(rng, 0.05, 0.3))
		default:
			end = start * (1 + uniform(rng, -0.05, 0.05))
		}
	}

	n := opts.Length
	points := make([]models.PricePoint, n)
	current := start
	for i := 0; i < n; i++ {
		target := start + (end-start)*float64(i)/float64(n-1)

		var noise float64
		if rng.Float64() < opts.VolatilityProb {
			noise = rng.NormFloat64() * opts.VolatilityScale * opts.BaseMean * (1 + rng.Float64())
		} else {
			noise = rng.NormFloat64() * opts.VolatilityScale * 0.3 * opts.BaseMean
		}

		drift := 0.0
		if i < n-1 {
			drift = (target - current) / float64(n-i)
		}
		current = math.Max(minPrice, current+drift+noise)
		points[i] = models.PricePoint{Seq: int64(i), Price: round3(current)}
	}

	meta := Metadata{
		Source:          SourceGenerated,
		Length:          n,
		BaseMean:        round3(opts.BaseMean),
		Trend:           opts.Trend,
		StartPrice:      round3(start),
		EndPrice:        round3(end),
		VolatilityProb:  round3(opts.VolatilityProb),
		VolatilityScale: round3(opts.VolatilityScale),
		GeneratedAt:     g.now().UTC(),
		Seed:            &seed,
	}
	return meta, points, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
