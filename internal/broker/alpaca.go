package broker

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/quote"
	"github.com/yourusername/quantopia/internal/session"
)

type orderClient interface {
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	GetPositions() ([]alpaca.Position, error)
	CancelOrder(orderID string) error
}

// Position is an open broker-side position
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	MarketValue   float64 `json:"market_value,omitempty"`
	UnrealizedPL  float64 `json:"unrealized_pl,omitempty"`
}

// AlpacaConfig holds trading API credentials
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// AlpacaBroker submits day market orders through the Alpaca trading API
type AlpacaBroker struct {
	client orderClient
}

// NewAlpacaBroker creates a broker backed by the Alpaca trading API
func NewAlpacaBroker(cfg AlpacaConfig) (*AlpacaBroker, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, models.NewConfigurationError("alpaca", "api_key and api_secret are required for live trading")
	}
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	return &AlpacaBroker{client: client}, nil
}

type callResult[T any] struct {
	value T
	err   error
}

// callWithContext runs a blocking client call and gives up when ctx ends. The
// call itself keeps running and may still reach the broker.
func callWithContext[T any](ctx context.Context, op, symbol string, call func() (T, error)) (T, error) {
	done := make(chan callResult[T], 1)
	go func() {
		v, err := call()
		done <- callResult[T]{value: v, err: err}
	}()

	var zero T
	select {
	case <-ctx.Done():
		return zero, &models.TransientFetchError{Op: op, Symbol: symbol, Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			return zero, &models.TransientFetchError{Op: op, Symbol: symbol, Err: res.err}
		}
		return res.value, nil
	}
}

// PlaceOrder implements OrderProvider
func (b *AlpacaBroker) PlaceOrder(ctx context.Context, symbol string, side models.SignalKind, quantity float64) (*Confirmation, error) {
	if session.MarketFor(symbol) != session.MarketUS {
		return nil, &models.TransientFetchError{Op: "alpaca order", Symbol: symbol, Err: models.ErrProviderUnavailable}
	}
	var orderSide alpaca.Side
	switch side {
	case models.SignalBuy:
		orderSide = alpaca.Buy
	case models.SignalSell:
		orderSide = alpaca.Sell
	default:
		return nil, fmt.Errorf("unsupported order side %q", side)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("order quantity must be positive, got %v", quantity)
	}

	qty := decimal.NewFromFloat(quantity)
	req := alpaca.PlaceOrderRequest{
		Symbol:      quote.BaseSymbol(symbol),
		Qty:         &qty,
		Side:        orderSide,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}

	order, err := callWithContext(ctx, "alpaca order", symbol, func() (*alpaca.Order, error) {
		return b.client.PlaceOrder(req)
	})
	if err != nil {
		return nil, err
	}
	return confirmationFromOrder(order), nil
}

// Positions lists the account's open positions
func (b *AlpacaBroker) Positions(ctx context.Context) ([]Position, error) {
	raw, err := callWithContext(ctx, "alpaca positions", "", b.client.GetPositions)
	if err != nil {
		return nil, err
	}
	out := make([]Position, len(raw))
	for i, p := range raw {
		out[i] = Position{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Quantity:      p.Qty.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
		}
		if p.MarketValue != nil {
			out[i].MarketValue = p.MarketValue.InexactFloat64()
		}
		if p.UnrealizedPL != nil {
			out[i].UnrealizedPL = p.UnrealizedPL.InexactFloat64()
		}
	}
	return out, nil
}

// CancelOrder requests cancellation of an open order
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return models.ErrInvalidID
	}
	_, err := callWithContext(ctx, "alpaca cancel", "", func() (struct{}, error) {
		return struct{}{}, b.client.CancelOrder(orderID)
	})
	return err
}

func confirmationFromOrder(order *alpaca.Order) *Confirmation {
	conf := &Confirmation{
		OrderID:     order.ID,
		Status:      string(order.Status),
		FilledQty:   order.FilledQty.InexactFloat64(),
		SubmittedAt: order.SubmittedAt,
	}
	if order.FilledAvgPrice != nil {
		conf.FilledPrice = order.FilledAvgPrice.InexactFloat64()
	}
	return conf
}
