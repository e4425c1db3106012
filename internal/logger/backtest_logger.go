package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// BacktestLogger provides dedicated logging for backtest runs.
type BacktestLogger struct {
	*logrus.Entry
}

// NewBacktestLogger creates a new backtest logger.
func NewBacktestLogger(baseLogger *logrus.Logger) *BacktestLogger {
	return &BacktestLogger{
		Entry: baseLogger.WithField("component", "backtest"),
	}
}

// LogRunStarted logs the start of a run.
func (bl *BacktestLogger) LogRunStarted(strategyName, paramsHash string, seriesLength int) {
	bl.WithFields(logrus.Fields{
		"strategy":      strategyName,
		"params_hash":   paramsHash,
		"series_length": seriesLength,
	}).Debug("Starting backtest run")
}

// LogRunCompleted logs the outcome of a run.
func (bl *BacktestLogger) LogRunCompleted(strategyName string, trades int, totalReturnPct, sharpe float64, duration time.Duration) {
	bl.WithFields(logrus.Fields{
		"strategy":         strategyName,
		"trades":           trades,
		"total_return_pct": totalReturnPct,
		"sharpe_ratio":     sharpe,
		"duration_ms":      float64(duration.Microseconds()) / 1000,
	}).Info("Backtest run completed")
}

// LogRunFailed logs an aborted run.
func (bl *BacktestLogger) LogRunFailed(strategyName string, err error) {
	bl.WithField("strategy", strategyName).WithError(err).Error("Backtest run failed")
}
