package quote

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/yourusername/quantopia/internal/models"
	"github.com/yourusername/quantopia/internal/session"
)

// latestTradeClient is the subset of the Alpaca market data client used here
type latestTradeClient interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// AlpacaConfig holds market data credentials
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	DataURL   string
	Feed      string
}

// AlpacaProvider reads the latest trade of US symbols from Alpaca market data
type AlpacaProvider struct {
	client latestTradeClient
	feed   string
}

// NewAlpacaProvider creates a provider backed by the Alpaca market data API
func NewAlpacaProvider(cfg AlpacaConfig) (*AlpacaProvider, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, models.NewConfigurationError("alpaca", "api_key and api_secret are required")
	}
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return newAlpacaProvider(marketdata.NewClient(opts), cfg.Feed), nil
}

func newAlpacaProvider(client latestTradeClient, feed string) *AlpacaProvider {
	return &AlpacaProvider{client: client, feed: feed}
}

type latestTradeResult struct {
	trade *marketdata.Trade
	err   error
}

// GetPrice implements Provider. The SDK call has no context, so it is abandoned
// (not cancelled) when ctx ends first.
func (p *AlpacaProvider) GetPrice(ctx context.Context, symbol string, _ models.Mode) (models.PricePoint, error) {
	if session.MarketFor(symbol) != session.MarketUS {
		return models.PricePoint{}, transient("alpaca quote", symbol, models.ErrProviderUnavailable)
	}

	done := make(chan latestTradeResult, 1)
	go func() {
		trade, err := p.client.GetLatestTrade(BaseSymbol(symbol), marketdata.GetLatestTradeRequest{
			Feed: marketdata.Feed(p.feed),
		})
		done <- latestTradeResult{trade: trade, err: err}
	}()

	select {
	case <-ctx.Done():
		return models.PricePoint{}, transient("alpaca quote", symbol, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return models.PricePoint{}, transient("alpaca quote", symbol, res.err)
		}
		if res.trade == nil || res.trade.Price <= 0 {
			return models.PricePoint{}, transient("alpaca quote", symbol, fmt.Errorf("no trade returned"))
		}
		return models.PricePoint{Timestamp: res.trade.Timestamp.UTC(), Price: res.trade.Price}, nil
	}
}
