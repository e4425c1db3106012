package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yourusername/quantopia/internal/database"
	"github.com/yourusername/quantopia/internal/models"
)

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

const (
	errScanBacktestResult = "failed to scan backtest result: %w"
	pgUniqueViolation     = "23505"
)

// PostgresStore implements Store for PostgreSQL
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveTask inserts or replaces a task record
func (r *PostgresStore) SaveTask(ctx context.Context, record *models.TaskRecord) error {
	if record == nil || record.State.ID == "" {
		return models.ErrInvalidID
	}
	state, stats, err := encodeRecord(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, symbol, status, started_at, updated_at, state, stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			state = EXCLUDED.state,
			stats = EXCLUDED.stats
	`
	_, err = r.db.Exec(ctx, query,
		record.State.ID, record.State.Config.Symbol, string(record.State.Status),
		record.State.StartedAt, record.State.UpdatedAt, state, stats,
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetTask retrieves a task record by ID
func (r *PostgresStore) GetTask(ctx context.Context, id string) (*models.TaskRecord, error) {
	var state, stats []byte
	err := r.db.QueryRow(ctx, `SELECT state, stats FROM tasks WHERE id = $1`, id).Scan(&state, &stats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return decodeRecord(state, stats)
}

// ListTasks returns every task ordered by start time
func (r *PostgresStore) ListTasks(ctx context.Context) ([]*models.TaskRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT state, stats FROM tasks ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var records []*models.TaskRecord
	for rows.Next() {
		var state, stats []byte
		if err := rows.Scan(&state, &stats); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		rec, err := decodeRecord(state, stats)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteTask removes a task; price points and trades cascade
func (r *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// AppendPricePoint records one sampled price
func (r *PostgresStore) AppendPricePoint(ctx context.Context, taskID string, point models.PricePoint) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO price_points (task_id, seq, ts, price, session) VALUES ($1, $2, $3, $4, $5)`,
		taskID, point.Seq, nullableTime(point.Timestamp), point.Price, string(point.Session),
	)
	if err != nil {
		return wrapWriteError("price point", err)
	}
	return nil
}

// ListPricePoints returns the last limit points in sequence order
func (r *PostgresStore) ListPricePoints(ctx context.Context, taskID string, limit int) ([]models.PricePoint, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	query := `
		SELECT seq, ts, price, session FROM (
			SELECT seq, ts, price, session FROM price_points
			WHERE task_id = $1 ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq ASC
	`
	rows, err := r.db.Query(ctx, query, taskID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query price points: %w", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var (
			p       models.PricePoint
			ts      *time.Time
			session string
		)
		if err := rows.Scan(&p.Seq, &ts, &p.Price, &session); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		p.Timestamp = valueOrZero(ts)
		p.Session = models.Session(session)
		points = append(points, p)
	}
	return points, rows.Err()
}

// AppendTrade records one executed trade
func (r *PostgresStore) AppendTrade(ctx context.Context, taskID string, trade models.Trade) error {
	query := `
		INSERT INTO trades (
			task_id, idx, ts, kind, price, quantity, cash_after, position_after,
			commission, note, order_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	_, err := r.db.Exec(ctx, query,
		taskID, trade.Index, nullableTime(trade.Timestamp), string(trade.Kind), trade.Price, trade.Quantity,
		trade.CashAfter, trade.PositionAfter, trade.Commission, trade.Note, trade.OrderID,
	)
	if err != nil {
		return wrapWriteError("trade", err)
	}
	return nil
}

// ListTrades returns a task's trades in execution order
func (r *PostgresStore) ListTrades(ctx context.Context, taskID string) ([]models.Trade, error) {
	query := `
		SELECT idx, ts, kind, price, quantity, cash_after, position_after, commission, note, order_id
		FROM trades WHERE task_id = $1 ORDER BY idx ASC
	`
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var (
			t    models.Trade
			ts   *time.Time
			kind string
		)
		if err := rows.Scan(&t.Index, &ts, &kind, &t.Price, &t.Quantity, &t.CashAfter,
			&t.PositionAfter, &t.Commission, &t.Note, &t.OrderID); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Timestamp = valueOrZero(ts)
		t.Kind = models.SignalKind(kind)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveBacktest inserts a backtest result
func (r *PostgresStore) SaveBacktest(ctx context.Context, result *models.BacktestResult) error {
	if result == nil {
		return fmt.Errorf("backtest result is required")
	}
	query := `
		INSERT INTO backtest_results (
			id, strategy, params_hash, params, dataset_id, series_length,
			initial_cash, final_value, total_return_pct, sharpe_ratio, max_drawdown_pct,
			total_trades, win_rate, full_results, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`
	_, err := r.db.Exec(ctx, query,
		result.ID, result.Strategy, result.ParamsHash, []byte(result.Params), result.DatasetID, result.SeriesLength,
		result.InitialCash, result.FinalValue, result.TotalReturnPct, result.SharpeRatio, result.MaxDrawdownPct,
		result.TotalTrades, result.WinRate, []byte(result.FullResults), result.CreatedAt,
	)
	if err != nil {
		return wrapWriteError("backtest result", err)
	}
	return nil
}

// ListBacktests retrieves the latest backtest summaries
func (r *PostgresStore) ListBacktests(ctx context.Context, limit int) ([]*models.BacktestResult, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	query := `
		SELECT id, strategy, params_hash, params, dataset_id, series_length,
			initial_cash, final_value, total_return_pct, sharpe_ratio, max_drawdown_pct,
			total_trades, win_rate, created_at
		FROM backtest_results ORDER BY created_at DESC LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest backtest results: %w", err)
	}
	defer rows.Close()

	var results []*models.BacktestResult
	for rows.Next() {
		result := &models.BacktestResult{}
		var params []byte
		if err := rows.Scan(
			&result.ID, &result.Strategy, &result.ParamsHash, &params, &result.DatasetID, &result.SeriesLength,
			&result.InitialCash, &result.FinalValue, &result.TotalReturnPct, &result.SharpeRatio, &result.MaxDrawdownPct,
			&result.TotalTrades, &result.WinRate, &result.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf(errScanBacktestResult, err)
		}
		result.Params = params
		results = append(results, result)
	}
	return results, rows.Err()
}

// GetBacktest retrieves one backtest result with its full payload
func (r *PostgresStore) GetBacktest(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	query := `
		SELECT id, strategy, params_hash, params, dataset_id, series_length,
			initial_cash, final_value, total_return_pct, sharpe_ratio, max_drawdown_pct,
			total_trades, win_rate, full_results, created_at
		FROM backtest_results WHERE id = $1
	`
	result := &models.BacktestResult{}
	var params, full []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&result.ID, &result.Strategy, &result.ParamsHash, &params, &result.DatasetID, &result.SeriesLength,
		&result.InitialCash, &result.FinalValue, &result.TotalReturnPct, &result.SharpeRatio, &result.MaxDrawdownPct,
		&result.TotalTrades, &result.WinRate, &full, &result.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("backtest %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf(errScanBacktestResult, err)
	}
	result.Params = params
	result.FullResults = full
	return result, nil
}

// DeleteBacktest removes one backtest result
func (r *PostgresStore) DeleteBacktest(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM backtest_results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backtest result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backtest %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Ping verifies database connectivity
func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Close closes the connection pool
func (r *PostgresStore) Close() error {
	r.db.Close()
	return nil
}

func wrapWriteError(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", what, models.ErrDuplicateKey)
	}
	return fmt.Errorf("failed to save %s: %w", what, err)
}
