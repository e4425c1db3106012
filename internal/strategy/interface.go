// Package strategy defines the pluggable signal generators and the registry that
// resolves them by name.
package strategy

import (
	"context"

	"github.com/yourusername/quantopia/internal/models"
)

// Strategy maps a price history to a signal. Implementations must be pure: the same
// Context always yields the same Decision.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, sc Context) (Decision, error)
	GetParameters() Params
}

// Context provides the strategy with look-ahead-free inputs. History ends at the
// point being decided on.
type Context struct {
	History []models.PricePoint
	// Position and EntryPrice describe the portfolio before this decision.
	// EntryPrice is zero when flat.
	Position   float64
	EntryPrice float64
}

// Current returns the latest point of the history
func (c Context) Current() models.PricePoint {
	if len(c.History) == 0 {
		return models.PricePoint{}
	}
	return c.History[len(c.History)-1]
}

// Decision is a strategy's output for one evaluation
type Decision struct {
	Kind models.SignalKind `json:"kind"`
	Info map[string]any    `json:"info,omitempty"`
}

// Hold returns a hold decision annotated with reason
func Hold(reason string) Decision {
	return Decision{Kind: models.SignalHold, Info: map[string]any{"reason": reason}}
}

// StrategyMetadata describes a registered strategy for catalogue listings
type StrategyMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
}
