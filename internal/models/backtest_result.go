package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BacktestResult represents a persisted backtest run
type BacktestResult struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Strategy       string          `db:"strategy" json:"strategy"`
	ParamsHash     string          `db:"params_hash" json:"params_hash"`
	Params         json.RawMessage `db:"params" json:"params"`
	DatasetID      string          `db:"dataset_id" json:"dataset_id,omitempty"`
	SeriesLength   int             `db:"series_length" json:"series_length"`
	InitialCash    float64         `db:"initial_cash" json:"initial_cash"`
	FinalValue     float64         `db:"final_value" json:"final_value"`
	TotalReturnPct float64         `db:"total_return_pct" json:"total_return_pct"`
	SharpeRatio    float64         `db:"sharpe_ratio" json:"sharpe_ratio"`
	MaxDrawdownPct float64         `db:"max_drawdown_pct" json:"max_drawdown_pct"`
	TotalTrades    int             `db:"total_trades" json:"total_trades"`
	WinRate        float64         `db:"win_rate" json:"win_rate"`
	FullResults    json.RawMessage `db:"full_results" json:"full_results,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}
