package models

// RunStats summarises the performance of a backtest or live task
type RunStats struct {
	InitialCash      float64 `json:"initial_cash"`
	FinalCash        float64 `json:"final_cash"`
	FinalPosition    float64 `json:"final_position"`
	FinalValue       float64 `json:"final_value"`
	TotalReturn      float64 `json:"total_return"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	BuyCount         int     `json:"buy_count"`
	SellCount        int     `json:"sell_count"`
	TotalTrades      int     `json:"total_trades"`
	WinRate          float64 `json:"win_rate"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	ProfitLossRatio  float64 `json:"profit_loss_ratio"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	AvgHoldingPeriod float64 `json:"avg_holding_period"`
	TotalTradePairs  int     `json:"total_trade_pairs"`

	InitialPrice   float64 `json:"initial_price"`
	FinalPrice     float64 `json:"final_price"`
	MaxPrice       float64 `json:"max_price"`
	MinPrice       float64 `json:"min_price"`
	PriceChange    float64 `json:"price_change"`
	PriceChangePct float64 `json:"price_change_pct"`
}
