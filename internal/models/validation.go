package models

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	taskValidator     *validator.Validate
	taskValidatorOnce sync.Once
)

func getTaskValidator() *validator.Validate {
	taskValidatorOnce.Do(func() {
		taskValidator = validator.New()
		taskValidator.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = taskValidator.RegisterValidation("session", func(fl validator.FieldLevel) bool {
			return Session(fl.Field().String()).IsTradable()
		})
	})
	return taskValidator
}

// Validate checks the configuration and returns a *ConfigurationError describing
// the first problem found
func (c *TaskConfig) Validate() error {
	if err := getTaskValidator().Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			return formatFieldError(validationErrors[0])
		}
		return &ConfigurationError{Reason: err.Error()}
	}

	if c.LotSize != nil && *c.LotSize <= 0 {
		return NewConfigurationError("lot_size", "must be greater than zero, got %v", *c.LotSize)
	}
	if c.MaxPositionRatio != nil && (*c.MaxPositionRatio <= 0 || *c.MaxPositionRatio > 1) {
		return NewConfigurationError("max_position_ratio", "must be in (0, 1], got %v", *c.MaxPositionRatio)
	}
	if !c.SamplingInterval.Valid() {
		return NewConfigurationError("sampling_interval", "must be at least 1 %s/%s/%s, got %d %q",
			UnitSeconds, UnitMinutes, UnitHours, c.SamplingInterval.Value, c.SamplingInterval.Unit)
	}
	if c.Kind == TaskKindTrade {
		if !c.DecisionInterval.Valid() {
			return NewConfigurationError("decision_interval", "must be at least 1 %s/%s/%s, got %d %q",
				UnitSeconds, UnitMinutes, UnitHours, c.DecisionInterval.Value, c.DecisionInterval.Unit)
		}
		if c.MaxCacheSize < 2 {
			return NewConfigurationError("max_cache_size", "trade tasks need at least 2 cached prices, got %d", c.MaxCacheSize)
		}
	}
	if !c.Duration.Permanent && c.Duration.Total() <= 0 {
		return NewConfigurationError("duration", "finite duration must be greater than zero")
	}
	return nil
}

func formatFieldError(fe validator.FieldError) *ConfigurationError {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return NewConfigurationError(field, "is required")
	case "oneof":
		return NewConfigurationError(field, "must be one of [%s], got %v", fe.Param(), fe.Value())
	case "session":
		return NewConfigurationError(field, "unknown session %v", fe.Value())
	case "gt", "gte", "lt", "lte", "min", "max":
		return NewConfigurationError(field, "must satisfy %s=%s, got %v", fe.Tag(), fe.Param(), fe.Value())
	default:
		return NewConfigurationError(field, "failed validation %q", fe.Tag())
	}
}
