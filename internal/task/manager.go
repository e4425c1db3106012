// Package task runs long-lived paper and live trading tasks. Each task samples
// quotes on one loop and, for trade tasks, evaluates its strategy on a second loop.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantopia/internal/broker"
	"github.com/yourusername/quantopia/internal/config"
	"github.com/yourusername/quantopia/internal/events"
	"github.com/yourusername/quantopia/internal/logger"
	"github.com/yourusername/quantopia/internal/metrics"
	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/quote"
	"github.com/yourusername/quantopia/internal/repository"
	"github.com/yourusername/quantopia/internal/scheduler"
	"github.com/yourusername/quantopia/internal/session"
	"github.com/yourusername/quantopia/internal/simulator"
	"github.com/yourusername/quantopia/internal/strategy"
)

// ErrManagerClosed is returned by Create after Shutdown
var ErrManagerClosed = errors.New("task manager is shut down")

// Dependencies are the collaborators of a Manager. Quotes and Scheduler are
// required; Orders is required only for live tasks.
type Dependencies struct {
	Quotes     quote.Provider
	Orders     broker.OrderProvider
	Strategies *strategy.Registry
	Store      repository.Store
	Publisher  events.Publisher
	Scheduler  scheduler.Scheduler
	Sessions   *session.Classifier
	Logger     *logrus.Logger
	Clock      Clock
}

// Options tunes the engine
type Options struct {
	QuoteTimeout   time.Duration
	OrderTimeout   time.Duration
	PersistTimeout time.Duration
	// RecentPoints is how many cached prices a Snapshot carries.
	RecentPoints int
	// MaxConsecutiveFailures is applied to tasks that leave it unset.
	MaxConsecutiveFailures int
	PeriodsPerYear         float64
}

// DefaultOptions returns recommended defaults
func DefaultOptions() Options {
	return Options{
		QuoteTimeout:           10 * time.Second,
		OrderTimeout:           10 * time.Second,
		PersistTimeout:         5 * time.Second,
		RecentPoints:           100,
		MaxConsecutiveFailures: models.DefaultMaxConsecutiveFailures,
	}
}

// OptionsFromConfig maps the engine section of the application config
func OptionsFromConfig(cfg config.EngineConfig) Options {
	return Options{
		QuoteTimeout:           cfg.QuoteTimeout(),
		OrderTimeout:           cfg.OrderTimeout(),
		PersistTimeout:         cfg.PersistTimeout(),
		RecentPoints:           cfg.RecentPoints,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		PeriodsPerYear:         cfg.PeriodsPerYear,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.QuoteTimeout <= 0 {
		o.QuoteTimeout = d.QuoteTimeout
	}
	if o.OrderTimeout <= 0 {
		o.OrderTimeout = d.OrderTimeout
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = d.PersistTimeout
	}
	if o.RecentPoints <= 0 {
		o.RecentPoints = d.RecentPoints
	}
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = d.MaxConsecutiveFailures
	}
	return o
}

// Manager is the registry of tasks and the control surface over them
type Manager struct {
	quotes     quote.Provider
	orders     broker.OrderProvider
	strategies *strategy.Registry
	store      repository.Store
	publisher  events.Publisher
	sched      scheduler.Scheduler
	sessions   *session.Classifier
	clock      Clock
	opts       Options

	logger  *logrus.Logger
	taskLog *logger.TaskLogger
	audit   *logger.AuditLogger

	mu     sync.RWMutex
	tasks  map[string]*Task
	closed bool
	ticks  sync.WaitGroup

	countsMu sync.Mutex
	counts   map[models.Status]int
}

// NewManager creates a task manager
func NewManager(deps Dependencies, opts Options) (*Manager, error) {
	if deps.Quotes == nil {
		return nil, fmt.Errorf("quote provider is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if deps.Strategies == nil {
		deps.Strategies = strategy.DefaultRegistry()
	}
	if deps.Store == nil {
		deps.Store = repository.NewMemoryStore()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Sessions == nil {
		deps.Sessions = &session.Classifier{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}

	return &Manager{
		quotes:     deps.Quotes,
		orders:     deps.Orders,
		strategies: deps.Strategies,
		store:      deps.Store,
		publisher:  deps.Publisher,
		sched:      deps.Scheduler,
		sessions:   deps.Sessions,
		clock:      deps.Clock,
		opts:       opts.withDefaults(),
		logger:     deps.Logger,
		taskLog:    logger.NewTaskLogger(deps.Logger),
		audit:      logger.NewAuditLogger(deps.Logger),
		tasks:      make(map[string]*Task),
		counts:     make(map[models.Status]int),
	}, nil
}

// Strategies returns the registry tasks are built from
func (m *Manager) Strategies() *strategy.Registry {
	return m.strategies
}

type sourceKey struct{}

// WithSource tags ctx with the origin of a control request for the audit log
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "internal"
}

// Create validates cfg, registers the task and schedules its loops. The task
// starts running, or waiting when the current session is not allowed.
func (m *Manager) Create(ctx context.Context, cfg models.TaskConfig) (string, error) {
	id, err := m.create(ctx, cfg)
	metrics.RecordControlAction("create", err)
	m.audit.LogControlAction("create", id, sourceFrom(ctx), err)
	return id, err
}

func (m *Manager) create(ctx context.Context, cfg models.TaskConfig) (string, error) {
	cfg = cfg.Clone()
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = m.opts.MaxConsecutiveFailures
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if cfg.Mode == models.ModeLive && m.orders == nil {
		return "", models.NewConfigurationError("mode", "live trading is not enabled")
	}

	sim, strat, err := m.buildExecution(&cfg)
	if err != nil {
		return "", err
	}

	now := m.clock.Now()
	state := models.TaskState{
		ID:        uuid.New().String(),
		Config:    cfg,
		StartedAt: now,
		UpdatedAt: now,
		Cash:      cfg.InitialCash,
		NextSeq:   1,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	t := m.newTask(state, sim, strat)
	m.tasks[state.ID] = t
	m.mu.Unlock()

	t.mu.Lock()
	t.state.Status = models.StatusWaiting
	if t.observeSessionLocked(now) {
		t.state.Status = models.StatusRunning
	} else {
		since := now
		t.state.InactiveSince = &since
	}

	err = t.scheduleLocked()
	if err == nil {
		saveCtx, cancel := context.WithTimeout(ctx, m.opts.PersistTimeout)
		err = m.store.SaveTask(saveCtx, t.recordLocked())
		cancel()
		if err != nil {
			err = fmt.Errorf("failed to save task: %w", err)
		}
	}
	if err != nil {
		t.unscheduleLocked()
		t.mu.Unlock()
		m.mu.Lock()
		delete(m.tasks, state.ID)
		m.mu.Unlock()
		return "", err
	}

	t.log.LogStatusChange("", string(t.state.Status), "created")
	t.emitLocked(models.TaskEvent{Type: models.EventStatusChanged, Status: t.state.Status, Reason: "created", Timestamp: now})
	m.statusMoved("", t.state.Status)
	t.unlock()
	return state.ID, nil
}

// buildExecution resolves the strategy and execution rules of cfg. Resolved
// parameters replace the raw ones.
func (m *Manager) buildExecution(cfg *models.TaskConfig) (*simulator.Simulator, strategy.Strategy, error) {
	sim, err := simulator.New(simulator.Config{
		LotSize:          cfg.Lot(),
		MaxPositionRatio: cfg.PositionRatio(),
		Commission:       cfg.Commission,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Kind != models.TaskKindTrade {
		return sim, nil, nil
	}
	strat, err := m.strategies.Build(cfg.Strategy, cfg.Params)
	if err != nil {
		return nil, nil, err
	}
	cfg.Params = map[string]any(strat.GetParameters())
	return sim, strat, nil
}

func (m *Manager) lookup(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return t, nil
}

// Get returns a snapshot of one task
func (m *Manager) Get(_ context.Context, id string) (*Snapshot, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	snap := t.snapshot(m.opts.RecentPoints)
	return &snap, nil
}

// List returns snapshots of every task ordered by start time
func (m *Manager) List(_ context.Context) ([]Snapshot, error) {
	m.mu.RLock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.snapshot(m.opts.RecentPoints))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].State, out[j].State
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *Manager) control(ctx context.Context, action, id string, apply func(*Task) error) error {
	t, err := m.lookup(id)
	if err == nil {
		t.mu.Lock()
		err = apply(t)
		t.unlock()
	}
	metrics.RecordControlAction(action, err)
	m.audit.LogControlAction(action, id, sourceFrom(ctx), err)
	return err
}

// Pause freezes both loops. Pausing a paused task is a no-op.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.control(ctx, "pause", id, (*Task).pauseLocked)
}

// Resume restarts the loops from now without backfilling missed ticks. Resuming a
// running or waiting task is a no-op.
func (m *Manager) Resume(ctx context.Context, id string) error {
	return m.control(ctx, "resume", id, (*Task).resumeLocked)
}

// Stop halts the task for good and keeps its history. Stopping a stopped task is a
// no-op.
func (m *Manager) Stop(ctx context.Context, id string) error {
	return m.control(ctx, "stop", id, func(t *Task) error {
		return t.stopLocked("stop requested")
	})
}

// Delete stops the task if needed and removes it and its history from the store
func (m *Manager) Delete(ctx context.Context, id string) error {
	err := m.delete(ctx, id)
	metrics.RecordControlAction("delete", err)
	m.audit.LogControlAction("delete", id, sourceFrom(ctx), err)
	return err
}

func (m *Manager) delete(ctx context.Context, id string) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if !t.state.Status.IsTerminal() {
		t.setStatusLocked(models.StatusStopped, "deleted")
	}
	t.unscheduleLocked()
	t.deleted = true
	status, symbol := t.state.Status, t.state.Config.Symbol
	t.unlock()

	if err := m.store.DeleteTask(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}

	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()

	m.statusMoved(status, "")
	metrics.ForgetTask(id, symbol)
	return nil
}

// Restore reloads persisted tasks after a restart. Tasks that were running or
// waiting come back paused; terminal tasks stay inspectable. It returns the number
// of tasks loaded.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	records, err := m.store.ListTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	restored := 0
	for _, rec := range records {
		m.mu.RLock()
		_, exists := m.tasks[rec.State.ID]
		closed := m.closed
		m.mu.RUnlock()
		if closed {
			return restored, ErrManagerClosed
		}
		if exists {
			continue
		}

		t, err := m.restoreTask(ctx, rec)
		if err != nil {
			return restored, err
		}
		m.mu.Lock()
		m.tasks[rec.State.ID] = t
		m.mu.Unlock()
		restored++
	}
	m.logger.WithField("tasks", restored).Info("Restored persisted tasks")
	return restored, nil
}

func (m *Manager) restoreTask(ctx context.Context, rec *models.TaskRecord) (*Task, error) {
	state := rec.State
	points, err := m.store.ListPricePoints(ctx, state.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load price points of task %s: %w", state.ID, err)
	}
	trades, err := m.store.ListTrades(ctx, state.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades of task %s: %w", state.ID, err)
	}

	cfg := state.Config
	sim, strat, buildErr := m.buildExecution(&cfg)
	status := state.Status
	if buildErr == nil {
		state.Config = cfg
	}

	t := m.newTask(state, sim, strat)

	t.mu.Lock()
	defer t.unlock()
	m.statusMoved("", status)
	t.replayLocked(points, trades)

	switch {
	case buildErr != nil && !status.IsTerminal():
		t.setStatusLocked(models.StatusError, fmt.Sprintf("restore failed: %v", buildErr))
		t.saveLocked()
	case status.IsActive():
		if t.state.InactiveSince == nil {
			// time since the last persisted update counts as downtime
			since := t.state.UpdatedAt
			t.state.InactiveSince = &since
		}
		t.setStatusLocked(models.StatusPaused, "restored after restart")
		t.saveLocked()
	}
	return t, nil
}

// Shutdown unschedules every task, persists its state and waits for in-flight
// ticks. Statuses are left as they are so Restore can pick the tasks up again.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()

	for _, t := range tasks {
		t.mu.Lock()
		t.unscheduleLocked()
		t.saveLocked()
		t.unlock()
	}

	done := make(chan struct{})
	go func() {
		m.ticks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight ticks: %w", ctx.Err())
	}
}

func (m *Manager) beginTick() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false
	}
	m.ticks.Add(1)
	return true
}

func (m *Manager) endTick() {
	m.ticks.Done()
}

// statusMoved keeps the per-status gauge current. Either side may be empty.
func (m *Manager) statusMoved(from, to models.Status) {
	m.countsMu.Lock()
	defer m.countsMu.Unlock()
	if from != "" {
		m.counts[from]--
	}
	if to != "" {
		m.counts[to]++
	}

	out := make(map[string]int, 6)
	for _, s := range []models.Status{
		models.StatusRunning, models.StatusWaiting, models.StatusPaused,
		models.StatusStopped, models.StatusCompleted, models.StatusError,
	} {
		out[string(s)] = m.counts[s]
	}
	metrics.UpdateTaskStatusCounts(out)
}

// StatusCounts returns how many registered tasks are in each status
func (m *Manager) StatusCounts() map[models.Status]int {
	m.countsMu.Lock()
	defer m.countsMu.Unlock()
	out := make(map[models.Status]int, len(m.counts))
	for s, n := range m.counts {
		if n != 0 {
			out[s] = n
		}
	}
	return out
}
