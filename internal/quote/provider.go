// Package quote supplies the latest price of a symbol to live and paper tasks.
package quote

import (
	"context"
	"strings"
	"time"

	"github.com/yourusername/quantopia/internal/metrics"
	"github.com/yourusername/quantopia/internal/models"
)

// Provider returns the latest quote of symbol. Seq is left for the caller to assign.
// Failures should be *models.TransientFetchError so the tick is skipped, not fatal.
type Provider interface {
	GetPrice(ctx context.Context, symbol string, mode models.Mode) (models.PricePoint, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, symbol string, mode models.Mode) (models.PricePoint, error)

// GetPrice implements Provider
func (f ProviderFunc) GetPrice(ctx context.Context, symbol string, mode models.Mode) (models.PricePoint, error) {
	return f(ctx, symbol, mode)
}

type instrumented struct {
	name string
	next Provider
}

// WithMetrics records latency and outcome of every call under name
func WithMetrics(name string, next Provider) Provider {
	return &instrumented{name: name, next: next}
}

func (p *instrumented) GetPrice(ctx context.Context, symbol string, mode models.Mode) (models.PricePoint, error) {
	started := time.Now()
	point, err := p.next.GetPrice(ctx, symbol, mode)
	metrics.RecordProviderCall(p.name, time.Since(started).Seconds(), err)
	return point, err
}

// BaseSymbol strips a market suffix such as ".US" so the symbol can be sent to a
// venue API
func BaseSymbol(symbol string) string {
	if i := strings.LastIndexByte(symbol, '.'); i > 0 {
		return symbol[:i]
	}
	return symbol
}

func transient(op, symbol string, err error) error {
	return &models.TransientFetchError{Op: op, Symbol: symbol, Err: err}
}
