// Package broker places orders for live-mode tasks. Paper tasks never reach it.
package broker

import (
	"context"
	"time"

	"github.com/yourusername/quantopia/internal/models"
)

// Confirmation is the broker's acknowledgement of an order
type Confirmation struct {
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	FilledQty   float64   `json:"filled_qty"`
	FilledPrice float64   `json:"filled_price,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// OrderProvider submits market orders. Failures should be *models.TransientFetchError.
type OrderProvider interface {
	PlaceOrder(ctx context.Context, symbol string, side models.SignalKind, quantity float64) (*Confirmation, error)
}

// OrderProviderFunc adapts a function to OrderProvider
type OrderProviderFunc func(ctx context.Context, symbol string, side models.SignalKind, quantity float64) (*Confirmation, error)

// PlaceOrder implements OrderProvider
func (f OrderProviderFunc) PlaceOrder(ctx context.Context, symbol string, side models.SignalKind, quantity float64) (*Confirmation, error) {
	return f(ctx, symbol, side, quantity)
}
