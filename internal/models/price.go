package models

import "time"

// PricePoint is one sampled or historical quote
type PricePoint struct {
	Seq       int64     `db:"seq" json:"seq"`
	Timestamp time.Time `db:"timestamp" json:"timestamp,omitempty"`
	Price     float64   `db:"price" json:"price"`
	Session   Session   `db:"session" json:"session,omitempty"`
}

// Signal is a strategy decision at one point of the series
type Signal struct {
	Index     int64          `json:"index"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
	Kind      SignalKind     `json:"kind"`
	Price     float64        `json:"price"`
	Info      map[string]any `json:"info,omitempty"`
}

// Trade is an executed (or simulated) fill
type Trade struct {
	Index         int64      `db:"index" json:"index"`
	Timestamp     time.Time  `db:"timestamp" json:"timestamp,omitempty"`
	Kind          SignalKind `db:"kind" json:"kind"`
	Price         float64    `db:"price" json:"price"`
	Quantity      float64    `db:"quantity" json:"quantity"`
	CashAfter     float64    `db:"cash_after" json:"cash_after"`
	PositionAfter float64    `db:"position_after" json:"position_after"`
	Commission    float64    `db:"commission" json:"commission"`
	Note          string     `db:"note" json:"note,omitempty"`
	OrderID       string     `db:"order_id" json:"order_id,omitempty"`
}

// Notional returns price times quantity
func (t Trade) Notional() float64 {
	return t.Price * t.Quantity
}

// Prices extracts the price column of a series
func Prices(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}
