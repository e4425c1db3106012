package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantopia/internal/logger"
	"github.com/yourusername/quantopia/internal/models"
)

type mockOrderClient struct {
	mock.Mock
}

func (m *mockOrderClient) PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error) {
	args := m.Called(req)
	order, _ := args.Get(0).(*alpaca.Order)
	return order, args.Error(1)
}

func (m *mockOrderClient) GetPositions() ([]alpaca.Position, error) {
	args := m.Called()
	positions, _ := args.Get(0).([]alpaca.Position)
	return positions, args.Error(1)
}

func (m *mockOrderClient) CancelOrder(orderID string) error {
	return m.Called(orderID).Error(0)
}

func TestAlpacaBrokerPlaceOrder(t *testing.T) {
	client := &mockOrderClient{}
	submitted := time.Date(2024, 3, 4, 14, 31, 0, 0, time.UTC)
	avg := decimal.NewFromFloat(101.25)

	client.On("PlaceOrder", mock.MatchedBy(func(req alpaca.PlaceOrderRequest) bool {
		return req.Symbol == "AAPL" &&
			req.Side == alpaca.Buy &&
			req.Type == alpaca.Market &&
			req.TimeInForce == alpaca.Day &&
			req.Qty != nil && req.Qty.Equal(decimal.NewFromInt(10))
	})).Return(&alpaca.Order{
		ID:             "ord-1",
		Status:         "filled",
		FilledQty:      decimal.NewFromInt(10),
		FilledAvgPrice: &avg,
		SubmittedAt:    submitted,
	}, nil).Once()

	b := &AlpacaBroker{client: client}
	conf, err := b.PlaceOrder(context.Background(), "AAPL.US", models.SignalBuy, 10)
	require.NoError(t, err)
	assert.Equal(t, &Confirmation{
		OrderID:     "ord-1",
		Status:      "filled",
		FilledQty:   10,
		FilledPrice: 101.25,
		SubmittedAt: submitted,
	}, conf)
	client.AssertExpectations(t)
}

func TestAlpacaBrokerFailures(t *testing.T) {
	client := &mockOrderClient{}
	client.On("PlaceOrder", mock.Anything).Return(nil, errors.New("insufficient buying power")).Once()
	b := &AlpacaBroker{client: client}
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, "AAPL.US", models.SignalSell, 5)
	assert.True(t, models.IsTransient(err))

	_, err = b.PlaceOrder(ctx, "0700.HK", models.SignalBuy, 100)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)

	_, err = b.PlaceOrder(ctx, "AAPL.US", models.SignalHold, 5)
	assert.Error(t, err)

	_, err = b.PlaceOrder(ctx, "AAPL.US", models.SignalBuy, 0)
	assert.Error(t, err)

	client.AssertExpectations(t)
}

func TestAlpacaBrokerTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	client := &mockOrderClient{}
	client.On("PlaceOrder", mock.Anything).Run(func(mock.Arguments) { <-release }).Return(nil, nil)
	b := &AlpacaBroker{client: client}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.PlaceOrder(ctx, "AAPL.US", models.SignalBuy, 1)
	assert.True(t, models.IsTransient(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAlpacaBrokerPositions(t *testing.T) {
	client := &mockOrderClient{}
	value := decimal.NewFromFloat(1050.5)
	pl := decimal.NewFromFloat(-12.25)
	client.On("GetPositions").Return([]alpaca.Position{
		{Symbol: "AAPL", Side: "long", Qty: decimal.NewFromInt(10), AvgEntryPrice: decimal.NewFromFloat(106.275), MarketValue: &value, UnrealizedPL: &pl},
		{Symbol: "MSFT", Side: "long", Qty: decimal.NewFromInt(2), AvgEntryPrice: decimal.NewFromInt(400)},
	}, nil).Once()
	client.On("GetPositions").Return(nil, errors.New("unauthorized")).Once()

	b := &AlpacaBroker{client: client}
	positions, err := b.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Position{
		{Symbol: "AAPL", Side: "long", Quantity: 10, AvgEntryPrice: 106.275, MarketValue: 1050.5, UnrealizedPL: -12.25},
		{Symbol: "MSFT", Side: "long", Quantity: 2, AvgEntryPrice: 400},
	}, positions)

	_, err = b.Positions(context.Background())
	assert.True(t, models.IsTransient(err))
	client.AssertExpectations(t)
}

func TestAlpacaBrokerCancelOrder(t *testing.T) {
	client := &mockOrderClient{}
	client.On("CancelOrder", "ord-1").Return(nil).Once()
	client.On("CancelOrder", "ord-2").Return(errors.New("order not found")).Once()
	b := &AlpacaBroker{client: client}
	ctx := context.Background()

	require.NoError(t, b.CancelOrder(ctx, "ord-1"))
	assert.True(t, models.IsTransient(b.CancelOrder(ctx, "ord-2")))
	assert.ErrorIs(t, b.CancelOrder(ctx, ""), models.ErrInvalidID)
	client.AssertExpectations(t)
}

func TestNewAlpacaBrokerRequiresCredentials(t *testing.T) {
	_, err := NewAlpacaBroker(AlpacaConfig{APISecret: "s"})
	assert.True(t, models.IsConfigurationError(err))
}

func TestLoggingBroker(t *testing.T) {
	b := NewLoggingBroker(logger.Discard())
	first, err := b.PlaceOrder(context.Background(), "AAPL.US", models.SignalBuy, 10)
	require.NoError(t, err)
	second, err := b.PlaceOrder(context.Background(), "AAPL.US", models.SignalSell, 10)
	require.NoError(t, err)

	assert.Equal(t, "noop-1", first.OrderID)
	assert.Equal(t, "noop-2", second.OrderID)
	assert.Equal(t, 10.0, second.FilledQty)
}
