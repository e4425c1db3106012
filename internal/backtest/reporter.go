package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GenerateConsoleReport formats a result for terminal output
func GenerateConsoleReport(result *Result) string {
	s := result.Stats
	var builder strings.Builder
	builder.WriteString("Backtest Report\n")
	builder.WriteString("================\n")
	builder.WriteString(fmt.Sprintf("Strategy: %s\n", result.Strategy))
	builder.WriteString(fmt.Sprintf("Parameters: %s\n", formatParams(result)))
	builder.WriteString(fmt.Sprintf("Ticks: %d\n", len(result.EquityCurve)))
	builder.WriteString(fmt.Sprintf("Initial Cash: %.2f\n", s.InitialCash))
	builder.WriteString(fmt.Sprintf("Final Value: %.2f\n", s.FinalValue))
	builder.WriteString(fmt.Sprintf("Total Return: %.2f (%.2f%%)\n", s.TotalReturn, s.TotalReturnPct))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %.2f%%\n", s.MaxDrawdownPct))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio: %.3f\n", s.SharpeRatio))
	builder.WriteString(fmt.Sprintf("Trades: %d (buy %d, sell %d)\n", s.TotalTrades, s.BuyCount, s.SellCount))
	builder.WriteString(fmt.Sprintf("Win Rate: %.2f%% (%d/%d pairs)\n", s.WinRate, s.WinningTrades, s.TotalTradePairs))
	builder.WriteString(fmt.Sprintf("Profit/Loss Ratio: %.3f\n", s.ProfitLossRatio))
	builder.WriteString(fmt.Sprintf("Avg Holding Period: %.2f ticks\n", s.AvgHoldingPeriod))
	builder.WriteString(fmt.Sprintf("Price: %.3f -> %.3f (%.2f%%)\n", s.InitialPrice, s.FinalPrice, s.PriceChangePct))
	return builder.String()
}

func formatParams(result *Result) string {
	keys := result.Params.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, result.Params[k])
	}
	return strings.Join(parts, " ")
}

// ExportTradesCSV writes the trade log to outputPath
func ExportTradesCSV(result *Result, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create trades file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"index", "time", "kind", "price", "quantity", "commission", "cash_after", "position_after", "note"}); err != nil {
		return err
	}
	for _, t := range result.Trades {
		ts := ""
		if !t.Timestamp.IsZero() {
			ts = t.Timestamp.UTC().Format(time.RFC3339)
		}
		record := []string{
			strconv.FormatInt(t.Index, 10),
			ts,
			string(t.Kind),
			formatFloat(t.Price),
			formatFloat(t.Quantity),
			formatFloat(t.Commission),
			formatFloat(t.CashAfter),
			formatFloat(t.PositionAfter),
			t.Note,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// GenerateCSVExport exports key metrics for spreadsheets
func GenerateCSVExport(result *Result, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	s := result.Stats
	csv := "metric,value\n" +
		fmt.Sprintf("strategy,%s\n", result.Strategy) +
		fmt.Sprintf("params_hash,%s\n", result.ParamsHash) +
		fmt.Sprintf("final_value,%.4f\n", s.FinalValue) +
		fmt.Sprintf("total_return_pct,%.4f\n", s.TotalReturnPct) +
		fmt.Sprintf("max_drawdown_pct,%.4f\n", s.MaxDrawdownPct) +
		fmt.Sprintf("sharpe_ratio,%.4f\n", s.SharpeRatio) +
		fmt.Sprintf("win_rate,%.4f\n", s.WinRate) +
		fmt.Sprintf("profit_loss_ratio,%.4f\n", s.ProfitLossRatio) +
		fmt.Sprintf("total_trades,%d\n", s.TotalTrades)
	return os.WriteFile(outputPath, []byte(csv), 0o644)
}
