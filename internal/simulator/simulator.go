// Package simulator applies strategy signals to a single-position portfolio under lot-size,
// position-ratio and commission rules.
package simulator

import (
	"github.com/shopspring/decimal"

	"github.com/yourusername/quantopia/internal/models"
)

// Config holds the execution rules. Commission charged on a trade is
// Commission.Flat + Commission.Rate * notional.
type Config struct {
	LotSize          float64
	MaxPositionRatio float64
	Commission       models.Commission
}

// Validate rejects settings that would make execution undefined
func (c Config) Validate() error {
	if c.LotSize <= 0 {
		return models.NewConfigurationError("lot_size", "must be greater than zero, got %v", c.LotSize)
	}
	if c.MaxPositionRatio <= 0 || c.MaxPositionRatio > 1 {
		return models.NewConfigurationError("max_position_ratio", "must be in (0, 1], got %v", c.MaxPositionRatio)
	}
	if c.Commission.Flat < 0 {
		return models.NewConfigurationError("commission.flat", "must not be negative, got %v", c.Commission.Flat)
	}
	if c.Commission.Rate < 0 || c.Commission.Rate >= 1 {
		return models.NewConfigurationError("commission.rate", "must be in [0, 1), got %v", c.Commission.Rate)
	}
	return nil
}

// Result is the portfolio after a signal has been applied. Trade is nil when the
// signal was a no-op.
type Result struct {
	Cash     float64
	Position float64
	Trade    *models.Trade
}

// Simulator is an immutable, validated execution model. It is safe for concurrent use.
type Simulator struct {
	lot   decimal.Decimal
	ratio decimal.Decimal
	flat  decimal.Decimal
	rate  decimal.Decimal
	cfg   Config
}

// New validates cfg and returns a Simulator
func New(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{
		lot:   decimal.NewFromFloat(cfg.LotSize),
		ratio: decimal.NewFromFloat(cfg.MaxPositionRatio),
		flat:  decimal.NewFromFloat(cfg.Commission.Flat),
		rate:  decimal.NewFromFloat(cfg.Commission.Rate),
		cfg:   cfg,
	}, nil
}

// Config returns the rules the simulator was built with
func (s *Simulator) Config() Config {
	return s.cfg
}

// Evaluate applies kind at price to (cash, position). The returned trade carries no
// index or timestamp; callers stamp those.
func (s *Simulator) Evaluate(kind models.SignalKind, price, cash, position float64) Result {
	unchanged := Result{Cash: cash, Position: position}
	if price <= 0 {
		return unchanged
	}

	switch kind {
	case models.SignalBuy:
		if position > 0 {
			return unchanged
		}
		return s.buy(decimal.NewFromFloat(price), decimal.NewFromFloat(cash), unchanged)
	case models.SignalSell:
		if position <= 0 {
			return unchanged
		}
		return s.sell(decimal.NewFromFloat(price), decimal.NewFromFloat(cash), decimal.NewFromFloat(position))
	default:
		return unchanged
	}
}

// AffordableQuantity returns the largest lot multiple that a buy at price could
// acquire with cash, or zero.
func (s *Simulator) AffordableQuantity(price, cash float64) float64 {
	if price <= 0 || cash <= 0 {
		return 0
	}
	qty := s.affordable(decimal.NewFromFloat(price), decimal.NewFromFloat(cash))
	return qty.InexactFloat64()
}

func (s *Simulator) affordable(price, cash decimal.Decimal) decimal.Decimal {
	budget := cash.Mul(s.ratio).Sub(s.flat)
	if !budget.IsPositive() {
		return decimal.Zero
	}
	unitCost := price.Mul(decimal.NewFromInt(1).Add(s.rate))
	lots := budget.Div(unitCost).Div(s.lot).Floor()
	if !lots.IsPositive() {
		return decimal.Zero
	}
	return lots.Mul(s.lot)
}

func (s *Simulator) buy(price, cash decimal.Decimal, unchanged Result) Result {
	qty := s.affordable(price, cash)
	if !qty.IsPositive() {
		return unchanged
	}
	notional := qty.Mul(price)
	commission := s.flat.Add(notional.Mul(s.rate))
	cost := notional.Add(commission)
	// Division rounding can push cost over budget by a unit in the last place.
	for cost.GreaterThan(cash.Mul(s.ratio)) && qty.IsPositive() {
		qty = qty.Sub(s.lot)
		notional = qty.Mul(price)
		commission = s.flat.Add(notional.Mul(s.rate))
		cost = notional.Add(commission)
	}
	if !qty.IsPositive() {
		return unchanged
	}

	newCash := cash.Sub(cost)
	return Result{
		Cash:     newCash.InexactFloat64(),
		Position: qty.InexactFloat64(),
		Trade: &models.Trade{
			Kind:          models.SignalBuy,
			Price:         price.InexactFloat64(),
			Quantity:      qty.InexactFloat64(),
			CashAfter:     newCash.InexactFloat64(),
			PositionAfter: qty.InexactFloat64(),
			Commission:    commission.InexactFloat64(),
		},
	}
}

func (s *Simulator) sell(price, cash, position decimal.Decimal) Result {
	proceeds := position.Mul(price)
	commission := s.flat.Add(proceeds.Mul(s.rate))
	// Never let fees drive cash negative.
	if ceiling := cash.Add(proceeds); commission.GreaterThan(ceiling) {
		commission = ceiling
	}

	newCash := cash.Add(proceeds).Sub(commission)
	return Result{
		Cash:     newCash.InexactFloat64(),
		Position: 0,
		Trade: &models.Trade{
			Kind:          models.SignalSell,
			Price:         price.InexactFloat64(),
			Quantity:      position.InexactFloat64(),
			CashAfter:     newCash.InexactFloat64(),
			PositionAfter: 0,
			Commission:    commission.InexactFloat64(),
		},
	}
}
