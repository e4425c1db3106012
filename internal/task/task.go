package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/quantopia/internal/logger"
	"github.com/yourusername/quantopia/internal/metrics"
	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/repository"
	"github.com/yourusername/quantopia/internal/scheduler"
	"github.com/yourusername/quantopia/internal/simulator"
	"github.com/yourusername/quantopia/internal/stats"
	"github.com/yourusername/quantopia/internal/strategy"
)

// Job name prefixes used for scheduler entries
const (
	samplingJobPrefix = "sample:"
	decisionJobPrefix = "decide:"
)

// SamplingJobName is the scheduler entry name of a task's sampling loop
func SamplingJobName(taskID string) string { return samplingJobPrefix + taskID }

// DecisionJobName is the scheduler entry name of a task's decision loop
func DecisionJobName(taskID string) string { return decisionJobPrefix + taskID }

// Task is one live or paper task. Every field below mu is guarded by it; external
// calls are made with mu released.
type Task struct {
	m *Manager

	// pubMu orders event delivery; it is acquired while mu is held and never the
	// other way round.
	pubMu sync.Mutex

	mu         sync.Mutex
	state      models.TaskState
	cache      []models.PricePoint
	trades     []models.Trade
	tracker    *stats.Tracker
	sim        *simulator.Simulator
	strat      strategy.Strategy
	guard      *failureGuard
	entryPrice float64
	lastPrice  float64

	scheduled   bool
	sampleEntry scheduler.EntryID
	decideEntry scheduler.EntryID
	sampling    bool
	deciding    bool
	deleted     bool

	log     *logger.TaskLogger
	pending []models.TaskEvent
}

// Snapshot is a consistent copy of a task's observable state
type Snapshot struct {
	State          models.TaskState    `json:"state"`
	RecentPrices   []models.PricePoint `json:"recent_prices"`
	CacheSize      int                 `json:"cache_size"`
	Trades         []models.Trade      `json:"trades"`
	Stats          models.RunStats     `json:"stats"`
	ElapsedSeconds float64             `json:"elapsed_seconds"`
}

func (m *Manager) newTask(state models.TaskState, sim *simulator.Simulator, strat strategy.Strategy) *Task {
	return &Task{
		m:       m,
		state:   state,
		cache:   make([]models.PricePoint, 0, min(state.Config.MaxCacheSize, 64)),
		trades:  []models.Trade{},
		tracker: stats.NewTracker(state.Config.InitialCash, stats.Options{PeriodsPerYear: m.opts.PeriodsPerYear}),
		sim:     sim,
		strat:   strat,
		guard:   newFailureGuard(state.Config.MaxConsecutiveFailures, state.ConsecutiveFailures),
		log:     m.taskLog.ForTask(state.ID, state.Config.Symbol),
	}
}

// unlock releases mu and delivers the events queued while it was held
func (t *Task) unlock() {
	pending := t.pending
	t.pending = nil
	if len(pending) == 0 {
		t.mu.Unlock()
		return
	}
	t.pubMu.Lock()
	t.mu.Unlock()
	defer t.pubMu.Unlock()

	for _, event := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), t.m.opts.PersistTimeout)
		if err := t.m.publisher.Publish(ctx, event); err != nil {
			t.log.WithError(err).WithField("event", event.Type).Warn("Failed to publish task event")
		}
		cancel()
	}
}

func (t *Task) emitLocked(event models.TaskEvent) {
	event.TaskID = t.state.ID
	event.Symbol = t.state.Config.Symbol
	if event.Timestamp.IsZero() {
		event.Timestamp = t.m.clock.Now()
	}
	t.pending = append(t.pending, event)
}

func isInactive(s models.Status) bool {
	return s == models.StatusPaused || s == models.StatusWaiting
}

// setStatusLocked moves the task to status and keeps the inactive-time bookkeeping,
// the scheduler entries and the status gauges in line with it
func (t *Task) setStatusLocked(to models.Status, reason string) {
	from := t.state.Status
	if from == to {
		return
	}
	now := t.m.clock.Now()

	switch {
	case isInactive(to):
		if t.state.InactiveSince == nil {
			since := now
			t.state.InactiveSince = &since
		}
	case t.state.InactiveSince != nil:
		if d := now.Sub(*t.state.InactiveSince); d > 0 {
			t.state.InactiveFor += d
		}
		t.state.InactiveSince = nil
	}

	t.state.Status = to
	t.state.UpdatedAt = now
	if to == models.StatusError {
		t.state.Error = reason
	}
	if to == models.StatusPaused || to.IsTerminal() {
		t.unscheduleLocked()
	}

	t.log.LogStatusChange(string(from), string(to), reason)
	t.emitLocked(models.TaskEvent{Type: models.EventStatusChanged, Status: to, Reason: reason, Timestamp: now})
	t.m.statusMoved(from, to)
}

func (t *Task) scheduleLocked() error {
	if t.scheduled {
		return nil
	}
	cfg := t.state.Config
	id, err := t.m.sched.Every(cfg.SamplingInterval.Duration(), SamplingJobName(t.state.ID), t.sampleTick)
	if err != nil {
		return fmt.Errorf("failed to schedule sampling loop: %w", err)
	}
	t.sampleEntry = id

	if cfg.Kind == models.TaskKindTrade {
		id, err := t.m.sched.Every(cfg.DecisionInterval.Duration(), DecisionJobName(t.state.ID), t.decisionTick)
		if err != nil {
			t.m.sched.Remove(t.sampleEntry)
			return fmt.Errorf("failed to schedule decision loop: %w", err)
		}
		t.decideEntry = id
	}
	t.scheduled = true
	return nil
}

func (t *Task) unscheduleLocked() {
	if !t.scheduled {
		return
	}
	t.m.sched.Remove(t.sampleEntry)
	if t.state.Config.Kind == models.TaskKindTrade {
		t.m.sched.Remove(t.decideEntry)
	}
	t.scheduled = false
}

func (t *Task) terminalErrLocked() error {
	return fmt.Errorf("%w: %s", models.ErrTaskTerminal, t.state.String())
}

func (t *Task) pauseLocked() error {
	switch {
	case t.state.Status == models.StatusPaused:
		return nil
	case t.state.Status.IsTerminal():
		return t.terminalErrLocked()
	}
	t.setStatusLocked(models.StatusPaused, "pause requested")
	t.saveLocked()
	return nil
}

func (t *Task) resumeLocked() error {
	switch {
	case t.state.Status.IsActive():
		return nil
	case t.state.Status.IsTerminal():
		return t.terminalErrLocked()
	}

	now := t.m.clock.Now()
	to := models.StatusWaiting
	if t.observeSessionLocked(now) {
		to = models.StatusRunning
	}
	if err := t.scheduleLocked(); err != nil {
		return err
	}
	t.setStatusLocked(to, "resume requested")
	t.saveLocked()
	return nil
}

func (t *Task) stopLocked(reason string) error {
	switch {
	case t.state.Status == models.StatusStopped:
		return nil
	case t.state.Status.IsTerminal():
		return t.terminalErrLocked()
	}
	t.setStatusLocked(models.StatusStopped, reason)
	t.saveLocked()
	return nil
}

func (t *Task) completeLocked(now time.Time) {
	t.log.LogCompleted(t.state.Elapsed(now), t.state.TicksSampled)
	t.setStatusLocked(models.StatusCompleted, "duration reached")
	t.saveLocked()
}

// observeSessionLocked records the session at now and reports whether it is allowed
func (t *Task) observeSessionLocked(now time.Time) bool {
	current := t.m.sessions.Classify(t.state.Config.Symbol, now)
	if current != t.state.CurrentSession {
		t.log.LogSessionChange(string(t.state.CurrentSession), string(current))
		t.state.CurrentSession = current
	}
	return t.state.Config.IsSessionAllowed(current)
}

func (t *Task) appendPointLocked(point models.PricePoint) {
	if limit := t.state.Config.MaxCacheSize; limit > 0 && len(t.cache) >= limit {
		t.cache = append(t.cache[len(t.cache)-limit+1:], point)
	} else {
		t.cache = append(t.cache, point)
	}
	t.lastPrice = point.Price
	t.tracker.ObservePrice(point.Price)
	t.tracker.ObserveEquity(t.equityLocked())
}

func (t *Task) applyTradeLocked(trade models.Trade) {
	t.state.Cash = trade.CashAfter
	t.state.Position = trade.PositionAfter
	switch {
	case trade.Kind == models.SignalBuy:
		t.entryPrice = trade.Price
	case t.state.Position == 0:
		t.entryPrice = 0
	}
	t.trades = append(t.trades, trade)
	t.tracker.ObserveTrade(trade)
	t.state.UpdatedAt = t.m.clock.Now()

	t.log.LogTrade(string(trade.Kind), trade.Price, trade.Quantity, trade.CashAfter, trade.PositionAfter, trade.OrderID)
	metrics.RecordTrade(string(t.state.Config.Mode), string(trade.Kind))
	metrics.UpdateTaskEquity(t.state.ID, t.state.Config.Symbol, t.equityLocked())

	booked := trade
	t.emitLocked(models.TaskEvent{Type: models.EventTradeExecuted, Trade: &booked, Timestamp: trade.Timestamp})

	t.persistLocked("append trade", func(ctx context.Context, s repository.Store) error {
		return s.AppendTrade(ctx, t.state.ID, trade)
	})
	t.saveLocked()
}

func (t *Task) equityLocked() float64 {
	return t.state.Cash + t.state.Position*t.lastPrice
}

// failLocked counts a failed tick and trips the task into error at the threshold
func (t *Task) failLocked(loop string, err error) {
	tripped := t.guard.RecordFailure(err)
	t.state.ConsecutiveFailures = t.guard.Failures()
	t.state.LastError = err.Error()
	t.state.UpdatedAt = t.m.clock.Now()

	metrics.RecordTick(loop, metrics.OutcomeFailure)
	t.log.LogTickFailure(loop, t.guard.Failures(), t.guard.Threshold(), err)
	t.emitLocked(models.TaskEvent{Type: models.EventTickFailed, Status: t.state.Status, Reason: err.Error()})

	if tripped {
		reason := t.guard.Reason()
		metrics.RecordFailureGuardTrip()
		t.m.audit.LogFailureGuardTrip(t.state.ID, reason, t.guard.Failures())
		t.setStatusLocked(models.StatusError, reason)
	}
	t.saveLocked()
}

func (t *Task) succeedLocked() {
	t.guard.RecordSuccess()
	t.state.ConsecutiveFailures = 0
}

func (t *Task) statsLocked() models.RunStats {
	return t.tracker.Stats(t.state.Cash, t.state.Position, t.lastPrice)
}

func (t *Task) stateCopyLocked() models.TaskState {
	s := t.state
	s.Config = t.state.Config.Clone()
	if t.state.InactiveSince != nil {
		since := *t.state.InactiveSince
		s.InactiveSince = &since
	}
	return s
}

func (t *Task) recordLocked() *models.TaskRecord {
	return &models.TaskRecord{State: t.stateCopyLocked(), Stats: t.statsLocked()}
}

// persistLocked runs one store write with the persistence deadline. Failures are
// logged; the in-memory state stays authoritative.
func (t *Task) persistLocked(op string, write func(ctx context.Context, s repository.Store) error) {
	if t.deleted {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.m.opts.PersistTimeout)
	defer cancel()
	if err := write(ctx, t.m.store); err != nil {
		t.log.WithError(err).WithField("operation", op).Warn("Failed to persist task state")
	}
}

func (t *Task) saveLocked() {
	record := t.recordLocked()
	t.persistLocked("save task", func(ctx context.Context, s repository.Store) error {
		return s.SaveTask(ctx, record)
	})
}

func (t *Task) snapshot(recent int) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := t.m.clock.Now()
	if t.state.Status.IsTerminal() {
		// elapsed time stops at the terminal transition
		end = t.state.UpdatedAt
	}
	prices := t.cache
	if recent > 0 && len(prices) > recent {
		prices = prices[len(prices)-recent:]
	}
	return Snapshot{
		State:          t.stateCopyLocked(),
		RecentPrices:   append([]models.PricePoint{}, prices...),
		CacheSize:      len(t.cache),
		Trades:         append([]models.Trade{}, t.trades...),
		Stats:          t.statsLocked(),
		ElapsedSeconds: t.state.Elapsed(end).Seconds(),
	}
}

// replayLocked rebuilds the cache and statistics from persisted history. A point
// with sequence s is valued after every trade decided before it.
func (t *Task) replayLocked(points []models.PricePoint, trades []models.Trade) {
	cash, position := t.state.Config.InitialCash, 0.0
	next := 0
	apply := func(trade models.Trade) {
		cash, position = trade.CashAfter, trade.PositionAfter
		t.tracker.ObserveTrade(trade)
		t.trades = append(t.trades, trade)
		switch {
		case trade.Kind == models.SignalBuy:
			t.entryPrice = trade.Price
		case trade.PositionAfter == 0:
			t.entryPrice = 0
		}
	}

	for _, p := range points {
		for next < len(trades) && trades[next].Index < p.Seq {
			apply(trades[next])
			next++
		}
		t.lastPrice = p.Price
		t.tracker.ObservePrice(p.Price)
		t.tracker.ObserveEquity(cash + position*p.Price)
	}
	for ; next < len(trades); next++ {
		apply(trades[next])
	}

	if limit := t.state.Config.MaxCacheSize; limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	t.cache = append(t.cache[:0], points...)

	if n := len(points); n > 0 && t.state.NextSeq <= points[n-1].Seq {
		t.state.NextSeq = points[n-1].Seq + 1
	}
	if n := len(t.trades); n > 0 && t.state.LastDecisionSeq < t.trades[n-1].Index {
		t.state.LastDecisionSeq = t.trades[n-1].Index
	}
}
