package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yourusername/quantopia/internal/models"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store backed by a SQLite database opened with
// database.OpenSQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open, migrated SQLite handle
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// SaveTask inserts or replaces a task record
func (s *SQLiteStore) SaveTask(ctx context.Context, record *models.TaskRecord) error {
	if record == nil || record.State.ID == "" {
		return models.ErrInvalidID
	}
	state, stats, err := encodeRecord(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, symbol, status, started_at, updated_at, state, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			state = excluded.state,
			stats = excluded.stats`,
		record.State.ID, record.State.Config.Symbol, string(record.State.Status),
		unixNanos(record.State.StartedAt), unixNanos(record.State.UpdatedAt), string(state), string(stats),
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetTask retrieves a task record by ID
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.TaskRecord, error) {
	var state, stats string
	err := s.db.QueryRowContext(ctx, `SELECT state, stats FROM tasks WHERE id = ?`, id).Scan(&state, &stats)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return decodeRecord([]byte(state), []byte(stats))
}

// ListTasks returns every task ordered by start time
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*models.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, stats FROM tasks ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var records []*models.TaskRecord
	for rows.Next() {
		var state, stats string
		if err := rows.Scan(&state, &stats); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		rec, err := decodeRecord([]byte(state), []byte(stats))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteTask removes a task and its history in one transaction
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM price_points WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete price points: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete trades: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AppendPricePoint records one sampled price
func (s *SQLiteStore) AppendPricePoint(ctx context.Context, taskID string, point models.PricePoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_points (task_id, seq, ts, price, session) VALUES (?, ?, ?, ?, ?)`,
		taskID, point.Seq, unixNanos(point.Timestamp), point.Price, string(point.Session),
	)
	if err != nil {
		return wrapSQLiteWriteError("price point", err)
	}
	return nil
}

// ListPricePoints returns the last limit points in sequence order
func (s *SQLiteStore) ListPricePoints(ctx context.Context, taskID string, limit int) ([]models.PricePoint, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, ts, price, session FROM (
			SELECT seq, ts, price, session FROM price_points
			WHERE task_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price points: %w", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var (
			p       models.PricePoint
			ts      int64
			session string
		)
		if err := rows.Scan(&p.Seq, &ts, &p.Price, &session); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		p.Timestamp = fromUnixNanos(ts)
		p.Session = models.Session(session)
		points = append(points, p)
	}
	return points, rows.Err()
}

// AppendTrade records one executed trade
func (s *SQLiteStore) AppendTrade(ctx context.Context, taskID string, trade models.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (
			task_id, idx, ts, kind, price, quantity, cash_after, position_after,
			commission, note, order_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		taskID, trade.Index, unixNanos(trade.Timestamp), string(trade.Kind), trade.Price, trade.Quantity,
		trade.CashAfter, trade.PositionAfter, trade.Commission, trade.Note, trade.OrderID,
	)
	if err != nil {
		return wrapSQLiteWriteError("trade", err)
	}
	return nil
}

// ListTrades returns a task's trades in execution order
func (s *SQLiteStore) ListTrades(ctx context.Context, taskID string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, ts, kind, price, quantity, cash_after, position_after, commission, note, order_id
		FROM trades WHERE task_id = ? ORDER BY idx ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var (
			t    models.Trade
			ts   int64
			kind string
		)
		if err := rows.Scan(&t.Index, &ts, &kind, &t.Price, &t.Quantity, &t.CashAfter,
			&t.PositionAfter, &t.Commission, &t.Note, &t.OrderID); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Timestamp = fromUnixNanos(ts)
		t.Kind = models.SignalKind(kind)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveBacktest inserts a backtest result
func (s *SQLiteStore) SaveBacktest(ctx context.Context, result *models.BacktestResult) error {
	if result == nil {
		return fmt.Errorf("backtest result is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_results (
			id, strategy, params_hash, params, dataset_id, series_length,
			initial_cash, final_value, total_return_pct, sharpe_ratio, max_drawdown_pct,
			total_trades, win_rate, full_results, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID.String(), result.Strategy, result.ParamsHash, string(result.Params), result.DatasetID, result.SeriesLength,
		result.InitialCash, result.FinalValue, result.TotalReturnPct, result.SharpeRatio, result.MaxDrawdownPct,
		result.TotalTrades, result.WinRate, string(result.FullResults), unixNanos(result.CreatedAt),
	)
	if err != nil {
		return wrapSQLiteWriteError("backtest result", err)
	}
	return nil
}

const backtestSummaryColumns = `id, strategy, params_hash, params, dataset_id, series_length,
	initial_cash, final_value, total_return_pct, sharpe_ratio, max_drawdown_pct,
	total_trades, win_rate, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanBacktest reads the summary columns, followed by full_results when withFull is set
func scanBacktest(row rowScanner, withFull bool) (*models.BacktestResult, error) {
	var (
		result     models.BacktestResult
		id, params string
		full       string
		created    int64
	)
	dest := []any{
		&id, &result.Strategy, &result.ParamsHash, &params, &result.DatasetID, &result.SeriesLength,
		&result.InitialCash, &result.FinalValue, &result.TotalReturnPct, &result.SharpeRatio, &result.MaxDrawdownPct,
		&result.TotalTrades, &result.WinRate, &created,
	}
	if withFull {
		dest = append(dest, &full)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("backtest id %q: %w", id, models.ErrInvalidID)
	}
	result.ID = parsed
	result.Params = []byte(params)
	if withFull {
		result.FullResults = []byte(full)
	}
	result.CreatedAt = fromUnixNanos(created)
	return &result, nil
}

// ListBacktests retrieves the latest backtest summaries
func (s *SQLiteStore) ListBacktests(ctx context.Context, limit int) ([]*models.BacktestResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backtestSummaryColumns+` FROM backtest_results ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest backtest results: %w", err)
	}
	defer rows.Close()

	var results []*models.BacktestResult
	for rows.Next() {
		result, err := scanBacktest(rows, false)
		if err != nil {
			return nil, fmt.Errorf(errScanBacktestResult, err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// GetBacktest retrieves one backtest result with its full payload
func (s *SQLiteStore) GetBacktest(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+backtestSummaryColumns+`, full_results FROM backtest_results WHERE id = ?`, id.String())
	result, err := scanBacktest(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("backtest %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf(errScanBacktestResult, err)
	}
	return result, nil
}

// DeleteBacktest removes one backtest result
func (s *SQLiteStore) DeleteBacktest(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backtest_results WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete backtest result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("backtest %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Ping verifies database connectivity
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// modernc reports constraint failures only through the message text
func wrapSQLiteWriteError(what string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "PRIMARY KEY") {
		return fmt.Errorf("%s: %w", what, models.ErrDuplicateKey)
	}
	return fmt.Errorf("failed to save %s: %w", what, err)
}
