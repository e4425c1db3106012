package task

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/quantopia/internal/broker"
	"github.com/yourusername/quantopia/internal/metrics"
	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/repository"
	"github.com/yourusername/quantopia/internal/strategy"
)

const (
	loopSampling = "sampling"
	loopDecision = "decision"
)

// sampleTick is the sampling loop body: the quote call happens with the task
// unlocked and the status is checked again once it returns
func (t *Task) sampleTick() {
	if !t.m.beginTick() {
		return
	}
	defer t.m.endTick()
	defer t.recoverTick(loopSampling)

	symbol, mode, ok := t.beforeSample()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.m.opts.QuoteTimeout)
	point, err := t.m.quotes.GetPrice(ctx, symbol, mode)
	cancel()

	t.afterSample(point, err)
}

func (t *Task) beforeSample() (string, models.Mode, bool) {
	t.mu.Lock()
	defer t.unlock()

	if t.sampling || !t.state.Status.IsActive() {
		metrics.RecordTick(loopSampling, metrics.OutcomeSkipped)
		return "", "", false
	}

	now := t.m.clock.Now()
	if t.state.DurationExhausted(now) {
		t.completeLocked(now)
		return "", "", false
	}

	allowed := t.observeSessionLocked(now)
	switch {
	case allowed && t.state.Status == models.StatusWaiting:
		t.setStatusLocked(models.StatusRunning, fmt.Sprintf("session %s opened", t.state.CurrentSession))
		t.saveLocked()
	case !allowed && t.state.Status == models.StatusRunning:
		t.setStatusLocked(models.StatusWaiting, fmt.Sprintf("session %s not allowed", t.state.CurrentSession))
		t.saveLocked()
	}
	if t.state.Status != models.StatusRunning {
		metrics.RecordTick(loopSampling, metrics.OutcomeSkipped)
		return "", "", false
	}

	t.sampling = true
	return t.state.Config.Symbol, t.state.Config.Mode, true
}

func (t *Task) afterSample(point models.PricePoint, err error) {
	t.mu.Lock()
	defer t.unlock()
	t.sampling = false

	if t.state.Status != models.StatusRunning {
		metrics.RecordTick(loopSampling, metrics.OutcomeSkipped)
		return
	}
	if err == nil && point.Price <= 0 {
		err = fmt.Errorf("non-positive price %v", point.Price)
	}
	if err != nil {
		if !models.IsTransient(err) {
			err = &models.TransientFetchError{Op: "quote", Symbol: t.state.Config.Symbol, Err: err}
		}
		t.failLocked(loopSampling, err)
		return
	}

	now := t.m.clock.Now()
	point.Seq = t.state.NextSeq
	t.state.NextSeq++
	if point.Timestamp.IsZero() {
		point.Timestamp = now
	}
	point.Session = t.state.CurrentSession

	t.appendPointLocked(point)
	t.state.TicksSampled++
	t.state.UpdatedAt = now
	t.succeedLocked()

	metrics.RecordTick(loopSampling, metrics.OutcomeSuccess)
	metrics.UpdateTaskEquity(t.state.ID, t.state.Config.Symbol, t.equityLocked())

	t.persistLocked("append price point", func(ctx context.Context, s repository.Store) error {
		return s.AppendPricePoint(ctx, t.state.ID, point)
	})
	t.saveLocked()
}

// pendingOrder is a simulated trade waiting for broker confirmation
type pendingOrder struct {
	trade  models.Trade
	symbol string
}

// decisionTick is the decision loop body. Paper trades are booked immediately;
// live trades are booked once the broker confirms them.
func (t *Task) decisionTick() {
	if !t.m.beginTick() {
		return
	}
	defer t.m.endTick()
	defer t.recoverTick(loopDecision)

	order, ok := t.decide()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.m.opts.OrderTimeout)
	conf, err := t.m.orders.PlaceOrder(ctx, order.symbol, order.trade.Kind, order.trade.Quantity)
	cancel()

	t.afterOrder(order, conf, err)
}

// decide evaluates the strategy over the cache and returns an order only when a
// live trade has to be placed
func (t *Task) decide() (pendingOrder, bool) {
	t.mu.Lock()
	defer t.unlock()

	if t.deciding || t.state.Status != models.StatusRunning || t.strat == nil {
		metrics.RecordTick(loopDecision, metrics.OutcomeSkipped)
		return pendingOrder{}, false
	}
	now := t.m.clock.Now()
	if t.state.DurationExhausted(now) {
		t.completeLocked(now)
		return pendingOrder{}, false
	}
	if len(t.cache) < 2 {
		metrics.RecordTick(loopDecision, metrics.OutcomeSkipped)
		return pendingOrder{}, false
	}
	latest := t.cache[len(t.cache)-1]
	if latest.Seq <= t.state.LastDecisionSeq {
		// nothing sampled since the last decision
		metrics.RecordTick(loopDecision, metrics.OutcomeSkipped)
		return pendingOrder{}, false
	}

	decision, err := t.evaluateLocked(latest.Seq)
	t.state.LastDecisionSeq = latest.Seq
	if err != nil {
		t.failLocked(loopDecision, err)
		return pendingOrder{}, false
	}
	t.succeedLocked()

	res := t.sim.Evaluate(decision.Kind, latest.Price, t.state.Cash, t.state.Position)
	if res.Trade == nil {
		metrics.RecordTick(loopDecision, metrics.OutcomeSuccess)
		t.saveLocked()
		return pendingOrder{}, false
	}

	trade := *res.Trade
	trade.Index = latest.Seq
	trade.Timestamp = t.tradeTimeLocked(now)
	if reason, ok := decision.Info["reason"].(string); ok {
		trade.Note = reason
	}

	if t.state.Config.Mode != models.ModeLive {
		t.applyTradeLocked(trade)
		metrics.RecordTick(loopDecision, metrics.OutcomeSuccess)
		return pendingOrder{}, false
	}

	t.deciding = true
	return pendingOrder{trade: trade, symbol: t.state.Config.Symbol}, true
}

func (t *Task) evaluateLocked(seq int64) (strategy.Decision, error) {
	name := t.strat.Name()
	started := time.Now()
	decision, err := t.strat.Evaluate(context.Background(), strategy.Context{
		History:    append([]models.PricePoint(nil), t.cache...),
		Position:   t.state.Position,
		EntryPrice: t.entryPrice,
	})
	metrics.RecordStrategyEvaluation(time.Since(started).Seconds())
	if err == nil {
		switch decision.Kind {
		case models.SignalBuy, models.SignalSell, models.SignalHold:
		default:
			err = fmt.Errorf("unknown signal kind %q", decision.Kind)
		}
	}
	if err != nil {
		metrics.RecordStrategyError(name)
		return strategy.Decision{}, &models.StrategyError{Strategy: name, Index: seq, Err: err}
	}
	metrics.RecordStrategySignal(name, string(decision.Kind))
	return decision, nil
}

// tradeTimeLocked keeps trade timestamps strictly increasing
func (t *Task) tradeTimeLocked(now time.Time) time.Time {
	if n := len(t.trades); n > 0 {
		if last := t.trades[n-1].Timestamp; !now.After(last) {
			return last.Add(time.Nanosecond)
		}
	}
	return now
}

func (t *Task) afterOrder(order pendingOrder, conf *broker.Confirmation, err error) {
	t.mu.Lock()
	defer t.unlock()
	t.deciding = false

	if err == nil && conf == nil {
		err = fmt.Errorf("broker returned no confirmation")
	}
	if err != nil {
		if t.state.Status != models.StatusRunning {
			metrics.RecordTick(loopDecision, metrics.OutcomeSkipped)
			return
		}
		if !models.IsTransient(err) {
			err = &models.TransientFetchError{Op: "order", Symbol: order.symbol, Err: err}
		}
		t.failLocked(loopDecision, err)
		return
	}

	// A confirmed order exists at the broker whatever happened to the task while it
	// was in flight, so it is always booked.
	trade := order.trade
	trade.OrderID = conf.OrderID
	t.m.audit.LogOrderPlacement(t.state.ID, order.symbol, string(trade.Kind), trade.Quantity, conf.OrderID, trade.Timestamp)
	t.applyTradeLocked(trade)
	metrics.RecordTick(loopDecision, metrics.OutcomeSuccess)
}

// recoverTick turns a panic inside a loop into the error status
func (t *Task) recoverTick(loop string) {
	r := recover()
	if r == nil {
		return
	}
	t.mu.Lock()
	defer t.unlock()
	t.sampling, t.deciding = false, false
	metrics.RecordTick(loop, metrics.OutcomeFailure)
	if !t.state.Status.IsTerminal() {
		t.setStatusLocked(models.StatusError, fmt.Sprintf("panic in %s loop: %v", loop, r))
		t.saveLocked()
	}
}
