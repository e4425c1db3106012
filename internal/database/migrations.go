package database

import (
	"context"
	"database/sql"
	"fmt"
)

// postgresSchema creates the task, price, trade and backtest tables
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		state JSONB NOT NULL,
		stats JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS price_points (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		seq BIGINT NOT NULL,
		ts TIMESTAMPTZ,
		price DOUBLE PRECISION NOT NULL,
		session TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (task_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		idx BIGINT NOT NULL,
		ts TIMESTAMPTZ,
		kind TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		cash_after DOUBLE PRECISION NOT NULL,
		position_after DOUBLE PRECISION NOT NULL,
		commission DOUBLE PRECISION NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (task_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_results (
		id UUID PRIMARY KEY,
		strategy TEXT NOT NULL,
		params_hash TEXT NOT NULL,
		params JSONB NOT NULL,
		dataset_id TEXT NOT NULL DEFAULT '',
		series_length INTEGER NOT NULL,
		initial_cash DOUBLE PRECISION NOT NULL,
		final_value DOUBLE PRECISION NOT NULL,
		total_return_pct DOUBLE PRECISION NOT NULL,
		sharpe_ratio DOUBLE PRECISION NOT NULL,
		max_drawdown_pct DOUBLE PRECISION NOT NULL,
		total_trades INTEGER NOT NULL,
		win_rate DOUBLE PRECISION NOT NULL,
		full_results JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_results_created_at ON backtest_results (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_results_params_hash ON backtest_results (params_hash)`,
}

// sqliteSchema mirrors postgresSchema. Timestamps are unix nanoseconds, zero for unset.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		state TEXT NOT NULL,
		stats TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS price_points (
		task_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		ts INTEGER NOT NULL DEFAULT 0,
		price REAL NOT NULL,
		session TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (task_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		task_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		ts INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL,
		cash_after REAL NOT NULL,
		position_after REAL NOT NULL,
		commission REAL NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (task_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_results (
		id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		params_hash TEXT NOT NULL,
		params TEXT NOT NULL,
		dataset_id TEXT NOT NULL DEFAULT '',
		series_length INTEGER NOT NULL,
		initial_cash REAL NOT NULL,
		final_value REAL NOT NULL,
		total_return_pct REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		max_drawdown_pct REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		full_results TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_results_created_at ON backtest_results (created_at DESC)`,
}

// Migrate applies the PostgreSQL schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range postgresSchema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i, err)
		}
	}
	return nil
}

// MigrateSQLite applies the SQLite schema. Every statement is idempotent.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	for i, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply sqlite migration %d: %w", i, err)
		}
	}
	return nil
}
