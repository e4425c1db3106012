package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/strategy"
)

// Sweep runs the named strategy once per parameter set in grid, at most concurrency
// runs at a time. Results are returned in grid order. The first failing run cancels
// the rest.
func (e *Engine) Sweep(ctx context.Context, series []models.PricePoint, registry *strategy.Registry, name string, grid []map[string]any, concurrency int) ([]*Result, error) {
	if registry == nil {
		return nil, fmt.Errorf("strategy registry is required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	// Resolve every set up front so a bad grid fails before any work starts.
	strategies := make([]strategy.Strategy, len(grid))
	for i, params := range grid {
		strat, err := registry.Build(name, params)
		if err != nil {
			return nil, fmt.Errorf("grid entry %d: %w", i, err)
		}
		strategies[i] = strat
	}

	results := make([]*Result, len(grid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, strat := range strategies {
		i, strat := i, strat
		g.Go(func() error {
			result, err := e.Run(gctx, series, strat)
			if err != nil {
				return fmt.Errorf("grid entry %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Best returns the result with the highest total return, preferring the earliest on ties
func Best(results []*Result) *Result {
	var best *Result
	for _, r := range results {
		if r == nil {
			continue
		}
		if best == nil || r.Stats.TotalReturnPct > best.Stats.TotalReturnPct {
			best = r
		}
	}
	return best
}
