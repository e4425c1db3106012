package backtest

import (
	"fmt"

	"github.com/yourusername/quantopia/internal/config"
	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/simulator"
	"github.com/yourusername/quantopia/internal/stats"
)

// DefaultFlatCommission is charged per trade when no commission is configured
const DefaultFlatCommission = 5.0

// Config holds the execution and accounting settings of a backtest run
type Config struct {
	InitialCash      float64
	Commission       models.Commission
	LotSize          float64
	MaxPositionRatio float64
	PeriodsPerYear   float64
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		InitialCash:      models.DefaultInitialCash,
		Commission:       models.Commission{Flat: DefaultFlatCommission},
		LotSize:          models.DefaultLotSize,
		MaxPositionRatio: models.DefaultMaxPositionRatio,
		PeriodsPerYear:   stats.DefaultPeriodsPerYear,
	}
}

// FromConfig converts app config to backtest config
func FromConfig(cfg *config.BacktestConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("backtest config is required")
	}
	bt := Config{
		InitialCash:      cfg.InitialCash,
		Commission:       models.Commission{Flat: cfg.CommissionFlat, Rate: cfg.CommissionRate},
		LotSize:          cfg.LotSize,
		MaxPositionRatio: cfg.MaxPositionRatio,
		PeriodsPerYear:   cfg.PeriodsPerYear,
	}
	return bt, bt.Validate()
}

// Validate validates backtest config parameters
func (c Config) Validate() error {
	if c.InitialCash <= 0 {
		return models.NewConfigurationError("initial_cash", "must be positive, got %v", c.InitialCash)
	}
	if c.PeriodsPerYear < 0 {
		return models.NewConfigurationError("periods_per_year", "must not be negative, got %v", c.PeriodsPerYear)
	}
	return c.simulatorConfig().Validate()
}

func (c Config) simulatorConfig() simulator.Config {
	return simulator.Config{
		LotSize:          c.LotSize,
		MaxPositionRatio: c.MaxPositionRatio,
		Commission:       c.Commission,
	}
}

func (c Config) statsOptions() stats.Options {
	return stats.Options{PeriodsPerYear: c.PeriodsPerYear}
}
