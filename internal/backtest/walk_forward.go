package backtest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/strategy"
)

// WalkForwardConfig configures walk-forward evaluation
type WalkForwardConfig struct {
	Windows            int
	MinTradesPerWindow int
}

// WalkForwardWindow is one out-of-sample slice of the series
type WalkForwardWindow struct {
	WindowID int             `json:"window_id"`
	Start    int             `json:"start"`
	End      int             `json:"end"`
	Stats    models.RunStats `json:"stats"`
}

// WalkForwardResult represents a walk-forward evaluation
type WalkForwardResult struct {
	Windows          []WalkForwardWindow `json:"windows"`
	InSample         models.RunStats     `json:"in_sample"`
	MeanReturnPct    float64             `json:"mean_return_pct"`
	MeanSharpe       float64             `json:"mean_sharpe"`
	MeanDrawdownPct  float64             `json:"mean_drawdown_pct"`
	ConsistencyScore float64             `json:"consistency_score"`
	OverfitScore     float64             `json:"overfit_score"`
}

// RunWalkForward splits series into consecutive windows and replays each one from
// a fresh portfolio. Windows with fewer than MinTradesPerWindow trades are skipped.
func (e *Engine) RunWalkForward(ctx context.Context, series []models.PricePoint, strat strategy.Strategy, cfg WalkForwardConfig) (WalkForwardResult, error) {
	if cfg.Windows <= 0 {
		return WalkForwardResult{}, fmt.Errorf("walk-forward windows must be positive")
	}
	size := len(series) / cfg.Windows
	if size < 2 {
		return WalkForwardResult{}, fmt.Errorf("series of %d points is too short for %d windows", len(series), cfg.Windows)
	}

	full, err := e.Run(ctx, series, strat)
	if err != nil {
		return WalkForwardResult{}, err
	}

	windows := []WalkForwardWindow{}
	for i := 0; i < cfg.Windows; i++ {
		start := i * size
		end := start + size
		if i == cfg.Windows-1 {
			end = len(series)
		}
		result, err := e.Run(ctx, series[start:end:end], strat)
		if err != nil {
			return WalkForwardResult{}, fmt.Errorf("window %d: %w", i+1, err)
		}
		if result.Stats.TotalTrades < cfg.MinTradesPerWindow {
			continue
		}
		windows = append(windows, WalkForwardWindow{
			WindowID: i + 1,
			Start:    start,
			End:      end,
			Stats:    result.Stats,
		})
	}

	out := WalkForwardResult{
		Windows:          windows,
		InSample:         full.Stats,
		ConsistencyScore: CalculateConsistency(windows),
	}
	if len(windows) > 0 {
		for _, w := range windows {
			out.MeanReturnPct += w.Stats.TotalReturnPct
			out.MeanSharpe += w.Stats.SharpeRatio
			out.MeanDrawdownPct += w.Stats.MaxDrawdownPct
		}
		n := float64(len(windows))
		out.MeanReturnPct /= n
		out.MeanSharpe /= n
		out.MeanDrawdownPct /= n
	}
	if full.Stats.TotalReturnPct != 0 && len(windows) > 0 {
		out.OverfitScore = (full.Stats.TotalReturnPct - out.MeanReturnPct*float64(cfg.Windows)) / abs(full.Stats.TotalReturnPct)
	}
	return out, nil
}

// CalculateConsistency calculates the fraction of profitable windows
func CalculateConsistency(windows []WalkForwardWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	profitable := 0
	for _, w := range windows {
		if w.Stats.TotalReturn > 0 {
			profitable++
		}
	}
	return float64(profitable) / float64(len(windows))
}

// ToJSON exports the walk-forward result
func (w WalkForwardResult) ToJSON() string {
	data, _ := json.Marshal(w)
	return string(data)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
