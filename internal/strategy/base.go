package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/yourusername/quantopia/internal/models"
)

// BaseStrategy provides shared functionality for strategies
type BaseStrategy struct {
	name   string
	params Params
}

// Name returns the registered strategy name
func (b *BaseStrategy) Name() string {
	return b.name
}

// GetParameters returns the resolved parameters the strategy was built with
func (b *BaseStrategy) GetParameters() Params {
	out := make(Params, len(b.params))
	for k, v := range b.params {
		out[k] = v
	}
	return out
}

// ValidateTemporalSafety ensures no point in history is later than the one being decided on
func (b *BaseStrategy) ValidateTemporalSafety(history []models.PricePoint) error {
	if len(history) == 0 {
		return nil
	}
	current := history[len(history)-1]
	if current.Timestamp.IsZero() {
		return nil
	}
	var prev time.Time
	for i, p := range history {
		if p.Timestamp.IsZero() {
			continue
		}
		if p.Timestamp.After(current.Timestamp) {
			return fmt.Errorf("temporal safety violation: point %d at %s after %s", i, p.Timestamp, current.Timestamp)
		}
		if !prev.IsZero() && p.Timestamp.Before(prev) {
			return fmt.Errorf("temporal safety violation: point %d out of order", i)
		}
		prev = p.Timestamp
	}
	return nil
}

// tail returns at most the last n prices of history
func tail(history []models.PricePoint, n int) []float64 {
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	return models.Prices(history[start:])
}

// crossed classifies the relation between a fast and slow line over the last two samples
func crossed(prevFast, prevSlow, fast, slow float64) int {
	switch {
	case prevFast <= prevSlow && fast > slow:
		return 1
	case prevFast >= prevSlow && fast < slow:
		return -1
	default:
		return 0
	}
}

// round3 keeps auxiliary info compact and stable across platforms
func round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1000) / 1000
}

// clamp01 ensures a strength value in [0,1]
func clamp01(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
