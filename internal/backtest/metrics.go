package backtest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/stats"
)

// RiskMetrics are supplementary risk figures derived from an equity curve
type RiskMetrics struct {
	Volatility    float64 `json:"volatility"`
	SortinoRatio  float64 `json:"sortino_ratio"`
	CalmarRatio   float64 `json:"calmar_ratio"`
	ValueAtRisk95 float64 `json:"var_95"`
	ValueAtRisk99 float64 `json:"var_99"`
}

// CalculateRiskMetrics derives risk metrics from curve, annualised with periodsPerYear
// (zero means stats.DefaultPeriodsPerYear)
func CalculateRiskMetrics(curve EquityCurve, periodsPerYear float64) RiskMetrics {
	if periodsPerYear <= 0 {
		periodsPerYear = stats.DefaultPeriodsPerYear
	}
	returns := curve.GetReturns()
	m := RiskMetrics{
		Volatility:    curve.GetVolatility(),
		SortinoRatio:  calculateSortinoRatio(returns, periodsPerYear),
		ValueAtRisk95: calculateVaR(returns, 0.95),
		ValueAtRisk99: calculateVaR(returns, 0.99),
	}
	if maxDD := curve.MaxDrawdown(); maxDD > 0 && len(returns) > 0 {
		m.CalmarRatio = average(returns) * periodsPerYear / maxDD
	}
	return m
}

func calculateSortinoRatio(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	std := downsideStddev(returns)
	if std == 0 {
		return 0
	}
	return average(returns) / std * math.Sqrt(periodsPerYear)
}

// calculateVaR returns the historical return at the (1-level) quantile
func calculateVaR(returns []float64, level float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64{}, returns...)
	sort.Float64s(sorted)
	index := int(math.Floor((1.0 - level) * float64(len(sorted))))
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	return mean / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

func downsideStddev(values []float64) float64 {
	negatives := make([]float64, 0)
	for _, v := range values {
		if v < 0 {
			negatives = append(negatives, v)
		}
	}
	return stddev(negatives)
}

// HashParameters creates a stable hash for parameter maps
func HashParameters(params map[string]any) string {
	data, _ := json.Marshal(params)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// ToRecord converts a result to its persisted summary. datasetID may be empty.
func (r *Result) ToRecord(datasetID string, createdAt time.Time) (*models.BacktestResult, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	full, err := r.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &models.BacktestResult{
		ID:             uuid.New(),
		Strategy:       r.Strategy,
		ParamsHash:     r.ParamsHash,
		Params:         params,
		DatasetID:      datasetID,
		SeriesLength:   len(r.EquityCurve),
		InitialCash:    r.Stats.InitialCash,
		FinalValue:     r.Stats.FinalValue,
		TotalReturnPct: r.Stats.TotalReturnPct,
		SharpeRatio:    r.Stats.SharpeRatio,
		MaxDrawdownPct: r.Stats.MaxDrawdownPct,
		TotalTrades:    r.Stats.TotalTrades,
		WinRate:        r.Stats.WinRate,
		FullResults:    full,
		CreatedAt:      createdAt.UTC(),
	}, nil
}
