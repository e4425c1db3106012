// Package stats derives performance statistics from an equity curve and trade log.
//
// A Tracker is fed incrementally (live tasks) or folded over a complete log
// (backtests). Both paths run the same code, so results are identical.
package stats

import (
	"math"

	"github.com/yourusername/quantopia/internal/models"
)

// DefaultPeriodsPerYear annualises the Sharpe ratio assuming one equity sample per
// trading day.
const DefaultPeriodsPerYear = 252.0

// ProfitLossSentinel is reported as the profit/loss ratio when there are winning
// pairs but no losing ones.
const ProfitLossSentinel = 999.999

// Options tunes the derived statistics
type Options struct {
	// PeriodsPerYear is the number of equity samples per year used to annualise the
	// Sharpe ratio. Zero means DefaultPeriodsPerYear.
	PeriodsPerYear float64
}

func (o Options) periodsPerYear() float64 {
	if o.PeriodsPerYear <= 0 {
		return DefaultPeriodsPerYear
	}
	return o.PeriodsPerYear
}

// Pair is one FIFO match between (part of) a buy and (part of) a sell
type Pair struct {
	BuyIndex  int64   `json:"buy_index"`
	SellIndex int64   `json:"sell_index"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
	Quantity  float64 `json:"quantity"`
	Profit    float64 `json:"profit"`
}

// Ticks returns the holding period of the pair in price ticks
func (p Pair) Ticks() int64 {
	return p.SellIndex - p.BuyIndex
}

// Won reports whether the pair broke even or better
func (p Pair) Won() bool {
	return p.Profit >= 0
}

type openLot struct {
	index      int64
	price      float64
	quantity   float64
	feePerUnit float64
}

// Tracker accumulates statistics. It is not safe for concurrent use; owners
// serialise access.
type Tracker struct {
	opts        Options
	initialCash float64

	hasEquity   bool
	lastEquity  float64
	peak        float64
	maxDrawdown float64
	maxDDPct    float64

	// Welford accumulators over per-sample simple returns
	returnCount int
	returnMean  float64
	returnM2    float64

	buyCount  int
	sellCount int
	open      []openLot

	keepAllPairs bool

	pairs       int
	wins        int
	losses      int
	winSum      float64
	lossSum     float64
	holdingSum  float64
	recentPairs []Pair

	hasPrice   bool
	firstPrice float64
	lastPrice  float64
	maxPrice   float64
	minPrice   float64
}

// maxRecentPairs caps the pairs retained for inspection
const maxRecentPairs = 100

// NewTracker creates a tracker for a portfolio starting with initialCash
func NewTracker(initialCash float64, opts Options) *Tracker {
	return &Tracker{opts: opts, initialCash: initialCash}
}

// ObserveEquity records one equity sample (cash + position * price)
func (t *Tracker) ObserveEquity(value float64) {
	if t.hasEquity && t.lastEquity > 0 {
		t.addReturn((value - t.lastEquity) / t.lastEquity)
	}

	if !t.hasEquity || value > t.peak {
		t.peak = value
	}
	drawdown := t.peak - value
	if drawdown > t.maxDrawdown {
		t.maxDrawdown = drawdown
	}
	if t.peak > 0 {
		if pct := drawdown / t.peak * 100; pct > t.maxDDPct {
			t.maxDDPct = pct
		}
	}

	t.hasEquity = true
	t.lastEquity = value
}

func (t *Tracker) addReturn(r float64) {
	t.returnCount++
	delta := r - t.returnMean
	t.returnMean += delta / float64(t.returnCount)
	t.returnM2 += delta * (r - t.returnMean)
}

// ObservePrice records one market price for the price statistics
func (t *Tracker) ObservePrice(price float64) {
	if !t.hasPrice {
		t.firstPrice, t.maxPrice, t.minPrice = price, price, price
		t.hasPrice = true
	}
	t.lastPrice = price
	t.maxPrice = math.Max(t.maxPrice, price)
	t.minPrice = math.Min(t.minPrice, price)
}

// ObserveTrade records an executed trade and performs FIFO pairing for sells
func (t *Tracker) ObserveTrade(trade models.Trade) {
	if trade.Quantity <= 0 {
		return
	}
	switch trade.Kind {
	case models.SignalBuy:
		t.buyCount++
		t.open = append(t.open, openLot{
			index:      trade.Index,
			price:      trade.Price,
			quantity:   trade.Quantity,
			feePerUnit: trade.Commission / trade.Quantity,
		})
	case models.SignalSell:
		t.sellCount++
		t.matchSell(trade)
	}
}

func (t *Tracker) matchSell(sell models.Trade) {
	sellFee := sell.Commission / sell.Quantity
	remaining := sell.Quantity
	for remaining > 0 && len(t.open) > 0 {
		lot := &t.open[0]
		qty := math.Min(remaining, lot.quantity)

		pair := Pair{
			BuyIndex:  lot.index,
			SellIndex: sell.Index,
			BuyPrice:  lot.price,
			SellPrice: sell.Price,
			Quantity:  qty,
			Profit:    (sell.Price-lot.price)*qty - (lot.feePerUnit+sellFee)*qty,
		}
		t.recordPair(pair)

		remaining -= qty
		lot.quantity -= qty
		if lot.quantity <= 0 {
			t.open = t.open[1:]
		}
	}
}

func (t *Tracker) recordPair(p Pair) {
	t.pairs++
	t.holdingSum += float64(p.Ticks())
	if p.Won() {
		t.wins++
		t.winSum += p.Profit
	} else {
		t.losses++
		t.lossSum += math.Abs(p.Profit)
	}
	t.recentPairs = append(t.recentPairs, p)
	if !t.keepAllPairs && len(t.recentPairs) > maxRecentPairs {
		t.recentPairs = t.recentPairs[len(t.recentPairs)-maxRecentPairs:]
	}
}

// Pairs returns the most recent FIFO pairs, oldest first
func (t *Tracker) Pairs() []Pair {
	return append([]Pair(nil), t.recentPairs...)
}

// OpenQuantity returns the quantity of buys not yet matched by sells
func (t *Tracker) OpenQuantity() float64 {
	total := 0.0
	for _, lot := range t.open {
		total += lot.quantity
	}
	return total
}

// Stats derives RunStats for the portfolio (finalCash, finalPosition) valued at lastPrice
func (t *Tracker) Stats(finalCash, finalPosition, lastPrice float64) models.RunStats {
	finalValue := finalCash + finalPosition*lastPrice
	s := models.RunStats{
		InitialCash:      t.initialCash,
		FinalCash:        finalCash,
		FinalPosition:    finalPosition,
		FinalValue:       finalValue,
		TotalReturn:      finalValue - t.initialCash,
		MaxDrawdown:      t.maxDrawdown,
		MaxDrawdownPct:   t.maxDDPct,
		BuyCount:         t.buyCount,
		SellCount:        t.sellCount,
		TotalTrades:      t.buyCount + t.sellCount,
		WinningTrades:    t.wins,
		LosingTrades:     t.losses,
		TotalTradePairs:  t.pairs,
		WinRate:          calculateWinRate(t.wins, t.pairs),
		ProfitLossRatio:  t.profitLossRatio(),
		SharpeRatio:      t.sharpeRatio(),
		AvgHoldingPeriod: average(t.holdingSum, t.pairs),
	}
	if t.initialCash > 0 {
		s.TotalReturnPct = s.TotalReturn / t.initialCash * 100
	}
	if t.hasPrice {
		s.InitialPrice = t.firstPrice
		s.FinalPrice = t.lastPrice
		s.MaxPrice = t.maxPrice
		s.MinPrice = t.minPrice
		s.PriceChange = t.lastPrice - t.firstPrice
		if t.firstPrice > 0 {
			s.PriceChangePct = s.PriceChange / t.firstPrice * 100
		}
	}
	return s
}

func (t *Tracker) profitLossRatio() float64 {
	avgWin := average(t.winSum, t.wins)
	if t.losses == 0 {
		if avgWin > 0 {
			return ProfitLossSentinel
		}
		return 0
	}
	avgLoss := average(t.lossSum, t.losses)
	if avgLoss == 0 {
		return ProfitLossSentinel
	}
	return avgWin / avgLoss
}

// sharpeRatio uses the population standard deviation and a zero risk-free rate
func (t *Tracker) sharpeRatio() float64 {
	if t.returnCount < 2 {
		return 0
	}
	std := math.Sqrt(t.returnM2 / float64(t.returnCount))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return t.returnMean / std * math.Sqrt(t.opts.periodsPerYear())
}

func calculateWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

func average(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// PairTrades returns every FIFO pair of a complete trade log, in sell order
func PairTrades(trades []models.Trade) []Pair {
	t := &Tracker{keepAllPairs: true}
	for _, tr := range trades {
		t.ObserveTrade(tr)
	}
	return t.recentPairs
}

// Compute folds a tracker over a complete run. equity and prices are per-tick
// samples in order; trades must be in execution order.
func Compute(initialCash float64, trades []models.Trade, equity, prices []float64, finalCash, finalPosition float64, opts Options) models.RunStats {
	t := NewTracker(initialCash, opts)
	for _, v := range equity {
		t.ObserveEquity(v)
	}
	for _, p := range prices {
		t.ObservePrice(p)
	}
	for _, tr := range trades {
		t.ObserveTrade(tr)
	}
	last := 0.0
	if len(prices) > 0 {
		last = prices[len(prices)-1]
	}
	return t.Stats(finalCash, finalPosition, last)
}
