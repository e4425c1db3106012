// Package backtest replays a finite price series through a strategy and the execution
// simulator and derives performance statistics from the result.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantopia/internal/logger"
	"github.com/yourusername/quantopia/internal/metrics"
	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/simulator"
	"github.com/yourusername/quantopia/internal/strategy"
)

// Result is the complete output of one backtest run. Identical inputs produce a
// byte-identical JSON encoding.
type Result struct {
	Strategy    string          `json:"strategy"`
	Params      strategy.Params `json:"params"`
	ParamsHash  string          `json:"params_hash"`
	Signals     []models.Signal `json:"signals"`
	Trades      []models.Trade  `json:"trades"`
	Stats       models.RunStats `json:"stats"`
	EquityCurve EquityCurve     `json:"equity_curve"`
}

// ToJSON exports the result
func (r *Result) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// Engine orchestrates backtesting runs. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	config Config
	sim    *simulator.Simulator
	logger *logger.BacktestLogger
}

// NewEngine creates a new backtesting engine
func NewEngine(cfg Config, log *logrus.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sim, err := simulator.New(cfg.simulatorConfig())
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		config: cfg,
		sim:    sim,
		logger: logger.NewBacktestLogger(log),
	}, nil
}

// Config returns the backtest configuration
func (e *Engine) Config() Config {
	return e.config
}

// Run replays series through strat. At index i the strategy sees only series[:i+1].
// A strategy fault aborts the run with a *models.StrategyError and no result.
func (e *Engine) Run(ctx context.Context, series []models.PricePoint, strat strategy.Strategy) (*Result, error) {
	if strat == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	started := time.Now()
	params := strat.GetParameters()
	hash := HashParameters(params)
	e.logger.LogRunStarted(strat.Name(), hash, len(series))

	state := newRunState(e.config.InitialCash, e.config.statsOptions())
	for i := range series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.step(ctx, strat, series, i, state); err != nil {
			e.logger.LogRunFailed(strat.Name(), err)
			metrics.RecordBacktestRun("replay", metrics.OutcomeFailure, time.Since(started).Seconds())
			return nil, err
		}
	}

	lastPrice := 0.0
	if len(series) > 0 {
		lastPrice = series[len(series)-1].Price
	}
	result := &Result{
		Strategy:    strat.Name(),
		Params:      params,
		ParamsHash:  hash,
		Signals:     state.signals,
		Trades:      state.trades,
		Stats:       state.tracker.Stats(state.cash, state.position, lastPrice),
		EquityCurve: state.curve,
	}
	elapsed := time.Since(started)
	e.logger.LogRunCompleted(result.Strategy, len(result.Trades), result.Stats.TotalReturnPct, result.Stats.SharpeRatio, elapsed)
	metrics.RecordBacktestRun("replay", metrics.OutcomeSuccess, elapsed.Seconds())
	metrics.UpdateBacktestReturn(result.Strategy, result.Stats.TotalReturnPct)
	return result, nil
}

// RunNamed resolves the strategy through registry and runs it
func (e *Engine) RunNamed(ctx context.Context, series []models.PricePoint, registry *strategy.Registry, name string, params map[string]any) (*Result, error) {
	if registry == nil {
		return nil, fmt.Errorf("strategy registry is required")
	}
	strat, err := registry.Build(name, params)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, series, strat)
}

func (e *Engine) step(ctx context.Context, strat strategy.Strategy, series []models.PricePoint, i int, state *runState) error {
	point := series[i]
	index := int64(i)

	decision, err := strat.Evaluate(ctx, strategy.Context{
		History:    series[: i+1 : i+1],
		Position:   state.position,
		EntryPrice: state.entryPrice,
	})
	if err != nil {
		return &models.StrategyError{Strategy: strat.Name(), Index: index, Err: err}
	}
	switch decision.Kind {
	case models.SignalBuy, models.SignalSell, models.SignalHold:
	default:
		return &models.StrategyError{Strategy: strat.Name(), Index: index, Err: fmt.Errorf("unknown signal kind %q", decision.Kind)}
	}

	state.signals = append(state.signals, models.Signal{
		Index:     index,
		Timestamp: point.Timestamp,
		Kind:      decision.Kind,
		Price:     point.Price,
		Info:      decision.Info,
	})

	res := e.sim.Evaluate(decision.Kind, point.Price, state.cash, state.position)
	if res.Trade != nil {
		trade := *res.Trade
		trade.Index = index
		trade.Timestamp = point.Timestamp
		if reason, ok := decision.Info["reason"].(string); ok {
			trade.Note = reason
		}
		state.applyTrade(trade)
	}

	state.recordEquityPoint(index, point)
	return nil
}
