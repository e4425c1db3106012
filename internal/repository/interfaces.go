// Package repository persists tasks, their price history and trades, and backtest
// results.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/yourusername/quantopia/internal/models"
)

// TaskRepository stores the latest snapshot of each task
type TaskRepository interface {
	SaveTask(ctx context.Context, record *models.TaskRecord) error
	GetTask(ctx context.Context, id string) (*models.TaskRecord, error)
	ListTasks(ctx context.Context) ([]*models.TaskRecord, error)
	// DeleteTask removes the task together with its price points and trades.
	DeleteTask(ctx context.Context, id string) error
}

// PriceRepository stores the sampled price points of each task
type PriceRepository interface {
	AppendPricePoint(ctx context.Context, taskID string, point models.PricePoint) error
	// ListPricePoints returns the last limit points in sequence order, or all
	// points when limit <= 0.
	ListPricePoints(ctx context.Context, taskID string, limit int) ([]models.PricePoint, error)
}

// TradeRepository stores the append-only trade log of each task
type TradeRepository interface {
	AppendTrade(ctx context.Context, taskID string, trade models.Trade) error
	ListTrades(ctx context.Context, taskID string) ([]models.Trade, error)
}

// BacktestResultRepository defines backtest result persistence
type BacktestResultRepository interface {
	SaveBacktest(ctx context.Context, result *models.BacktestResult) error
	// ListBacktests returns the newest summaries first. FullResults is left empty.
	ListBacktests(ctx context.Context, limit int) ([]*models.BacktestResult, error)
	GetBacktest(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error)
	DeleteBacktest(ctx context.Context, id uuid.UUID) error
}

// Store is the complete persistence surface
type Store interface {
	TaskRepository
	PriceRepository
	TradeRepository
	BacktestResultRepository
	Ping(ctx context.Context) error
	Close() error
}
