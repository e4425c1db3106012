package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/yourusername/quantopia/internal/models"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. Records are copied on the way in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]models.TaskRecord
	points    map[string][]models.PricePoint
	trades    map[string][]models.Trade
	backtests []models.BacktestResult
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  make(map[string]models.TaskRecord),
		points: make(map[string][]models.PricePoint),
		trades: make(map[string][]models.Trade),
	}
}

// SaveTask inserts or replaces a task record
func (s *MemoryStore) SaveTask(_ context.Context, record *models.TaskRecord) error {
	if record == nil || record.State.ID == "" {
		return models.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[record.State.ID] = copyRecord(record)
	return nil
}

// GetTask returns a copy of a task record
func (s *MemoryStore) GetTask(_ context.Context, id string) (*models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	out := copyRecord(&rec)
	return &out, nil
}

// ListTasks returns every task ordered by start time
func (s *MemoryStore) ListTasks(_ context.Context) ([]*models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TaskRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		c := copyRecord(&rec)
		out = append(out, &c)
	}
	sortRecords(out)
	return out, nil
}

// DeleteTask removes a task and its history
func (s *MemoryStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	delete(s.tasks, id)
	delete(s.points, id)
	delete(s.trades, id)
	return nil
}

// AppendPricePoint appends a point; sequence numbers must increase
func (s *MemoryStore) AppendPricePoint(_ context.Context, taskID string, point models.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	points := s.points[taskID]
	if n := len(points); n > 0 && points[n-1].Seq >= point.Seq {
		return fmt.Errorf("price point %d for task %s: %w", point.Seq, taskID, models.ErrDuplicateKey)
	}
	s.points[taskID] = append(points, point)
	return nil
}

// ListPricePoints returns the last limit points of a task
func (s *MemoryStore) ListPricePoints(_ context.Context, taskID string, limit int) ([]models.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	points := s.points[taskID]
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return append([]models.PricePoint(nil), points...), nil
}

// AppendTrade appends a trade; indexes must increase
func (s *MemoryStore) AppendTrade(_ context.Context, taskID string, trade models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trades := s.trades[taskID]
	if n := len(trades); n > 0 && trades[n-1].Index >= trade.Index {
		return fmt.Errorf("trade %d for task %s: %w", trade.Index, taskID, models.ErrDuplicateKey)
	}
	s.trades[taskID] = append(trades, trade)
	return nil
}

// ListTrades returns a task's trades in execution order
func (s *MemoryStore) ListTrades(_ context.Context, taskID string) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Trade(nil), s.trades[taskID]...), nil
}

// SaveBacktest stores a backtest result
func (s *MemoryStore) SaveBacktest(_ context.Context, result *models.BacktestResult) error {
	if result == nil {
		return fmt.Errorf("backtest result is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.backtests {
		if existing.ID == result.ID {
			return fmt.Errorf("backtest %s: %w", result.ID, models.ErrDuplicateKey)
		}
	}
	s.backtests = append(s.backtests, *result)
	return nil
}

// ListBacktests returns summaries newest first
func (s *MemoryStore) ListBacktests(_ context.Context, limit int) ([]*models.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.BacktestResult, 0, len(s.backtests))
	for i := len(s.backtests) - 1; i >= 0; i-- {
		r := s.backtests[i]
		r.FullResults = nil
		out = append(out, &r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetBacktest returns a stored result with its full payload
func (s *MemoryStore) GetBacktest(_ context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.backtests {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("backtest %s: %w", id, models.ErrNotFound)
}

// DeleteBacktest removes a stored result
func (s *MemoryStore) DeleteBacktest(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.backtests {
		if r.ID == id {
			s.backtests = append(s.backtests[:i], s.backtests[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("backtest %s: %w", id, models.ErrNotFound)
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

func copyRecord(rec *models.TaskRecord) models.TaskRecord {
	out := *rec
	out.State.Config = rec.State.Config.Clone()
	if rec.State.InactiveSince != nil {
		t := *rec.State.InactiveSince
		out.State.InactiveSince = &t
	}
	return out
}

func sortRecords(records []*models.TaskRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].State, records[j].State
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		return a.ID < b.ID
	})
}
