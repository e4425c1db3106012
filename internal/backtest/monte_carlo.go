package backtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/yourusername/quantopia/internal/stats"
)

// DefaultMonteCarloSeed seeds the resampler when no seed is configured
const DefaultMonteCarloSeed = 42

// MonteCarloConfig configures the trade bootstrap
type MonteCarloConfig struct {
	Iterations int
	Seed       int64
	// KeepDistribution retains every simulated final value in the result.
	KeepDistribution bool
}

// MonteCarloResult summarises the bootstrapped final portfolio values
type MonteCarloResult struct {
	Iterations          int                `json:"iterations"`
	Pairs               int                `json:"pairs"`
	MeanFinalValue      float64            `json:"mean_final_value"`
	StdFinalValue       float64            `json:"std_final_value"`
	Percentile5         float64            `json:"p5_final_value"`
	Percentile95        float64            `json:"p95_final_value"`
	ProbabilityOfLoss   float64            `json:"probability_of_loss"`
	ConfidenceIntervals map[string]float64 `json:"confidence_intervals"`
	Distribution        []float64          `json:"distribution,omitempty"`
}

// RunMonteCarlo resamples the result's FIFO pair profits with replacement. Each
// iteration draws as many pairs as the run produced and adds their profit to the
// initial cash. The same seed always yields the same result.
func RunMonteCarlo(ctx context.Context, result *Result, cfg MonteCarloConfig) (MonteCarloResult, error) {
	if result == nil {
		return MonteCarloResult{}, fmt.Errorf("backtest result is required")
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1000
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = DefaultMonteCarloSeed
	}

	pairs := stats.PairTrades(result.Trades)
	initial := result.Stats.InitialCash
	out := MonteCarloResult{Iterations: cfg.Iterations, Pairs: len(pairs)}
	if len(pairs) == 0 {
		out.MeanFinalValue = initial
		out.Percentile5 = initial
		out.Percentile95 = initial
		out.ConfidenceIntervals = map[string]float64{}
		return out, nil
	}

	rng := rand.New(rand.NewSource(seed))
	distribution := make([]float64, cfg.Iterations)
	for i := range distribution {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return MonteCarloResult{}, err
			}
		}
		value := initial
		for range pairs {
			value += pairs[rng.Intn(len(pairs))].Profit
		}
		distribution[i] = value
	}

	out.MeanFinalValue, out.StdFinalValue = meanStd(distribution)
	out.Percentile5 = percentile(distribution, 0.05)
	out.Percentile95 = percentile(distribution, 0.95)
	out.ProbabilityOfLoss = probabilityBelow(distribution, initial)
	out.ConfidenceIntervals = CalculateConfidenceIntervals(distribution, []float64{0.9, 0.95, 0.99})
	if cfg.KeepDistribution {
		out.Distribution = distribution
	}
	return out, nil
}

// CalculateConfidenceIntervals returns the width of the central interval of the
// distribution for each level
func CalculateConfidenceIntervals(distribution []float64, levels []float64) map[string]float64 {
	results := make(map[string]float64)
	for _, level := range levels {
		p := (1.0 - level) / 2.0
		low := percentile(distribution, p)
		high := percentile(distribution, 1.0-p)
		results[fmt.Sprintf("%.0f%%", level*100)] = high - low
	}
	return results
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := average(values)
	return mean, stddev(values)
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	valuesCopy := append([]float64{}, values...)
	sort.Float64s(valuesCopy)
	idx := int(math.Floor(p * float64(len(valuesCopy)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(valuesCopy) {
		idx = len(valuesCopy) - 1
	}
	return valuesCopy[idx]
}

func probabilityBelow(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v < threshold {
			count++
		}
	}
	return float64(count) / float64(len(values))
}
