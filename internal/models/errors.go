package models

import (
	"errors"
	"fmt"
)

// Custom errors
var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateKey        = errors.New("duplicate key violation")
	ErrInvalidID           = errors.New("invalid ID format")
	ErrTaskTerminal        = errors.New("task is in a terminal state")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTaskNotTradable     = errors.New("task has no decision loop")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrStrategyNotFound    = errors.New("strategy not found")
)

// ConfigurationError reports an invalid setting detected before anything runs
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError builds a ConfigurationError with a formatted reason
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// TransientFetchError wraps a failed or timed-out call to a quote or order provider.
// The tick that produced it is skipped.
type TransientFetchError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err wraps a TransientFetchError
func IsTransient(err error) bool {
	var target *TransientFetchError
	return errors.As(err, &target)
}

// StrategyError wraps a fault raised while evaluating a strategy
type StrategyError struct {
	Strategy string
	Index    int64
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s failed at index %d: %v", e.Strategy, e.Index, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// IsStrategyError reports whether err wraps a StrategyError
func IsStrategyError(err error) bool {
	var target *StrategyError
	return errors.As(err, &target)
}
