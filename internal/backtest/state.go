package backtest

import (
	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/stats"
)

// runState tracks the portfolio during one replay
type runState struct {
	cash       float64
	position   float64
	entryPrice float64
	// peak is seeded by the first equity sample, as in stats.Tracker
	peak float64

	signals []models.Signal
	trades  []models.Trade
	curve   EquityCurve
	tracker *stats.Tracker
}

func newRunState(initialCash float64, opts stats.Options) *runState {
	return &runState{
		cash:    initialCash,
		signals: []models.Signal{},
		trades:  []models.Trade{},
		curve:   EquityCurve{},
		tracker: stats.NewTracker(initialCash, opts),
	}
}

// applyTrade books an executed trade
func (s *runState) applyTrade(trade models.Trade) {
	s.cash = trade.CashAfter
	s.position = trade.PositionAfter
	switch {
	case trade.Kind == models.SignalBuy:
		s.entryPrice = trade.Price
	case s.position == 0:
		s.entryPrice = 0
	}
	s.trades = append(s.trades, trade)
	s.tracker.ObserveTrade(trade)
}

// recordEquityPoint marks the portfolio to market at point
func (s *runState) recordEquityPoint(index int64, point models.PricePoint) {
	value := s.cash + s.position*point.Price
	if len(s.curve) == 0 || value > s.peak {
		s.peak = value
	}
	drawdown := 0.0
	if s.peak > 0 {
		drawdown = (s.peak - value) / s.peak
	}

	s.curve = append(s.curve, EquityPoint{
		Index:    index,
		Time:     point.Timestamp,
		Price:    point.Price,
		Cash:     s.cash,
		Position: s.position,
		Value:    value,
		Drawdown: drawdown,
	})
	s.tracker.ObservePrice(point.Price)
	s.tracker.ObserveEquity(value)
}
