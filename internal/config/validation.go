package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	// Register custom validation functions
	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("storagedriver", validateStorageDriver)
	_ = v.RegisterValidation("quoteprovider", validateQuoteProvider)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	// Additional cross-field validations
	if err := validateCrossField(cfg); err != nil {
		return err
	}

	return nil
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validateStorageDriver(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case StorageMemory, StoragePostgres, StorageSQLite:
		return true
	default:
		return false
	}
}

func validateQuoteProvider(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case QuoteSimulated, QuoteHTTP, QuoteAlpaca:
		return true
	default:
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	switch cfg.Storage.Driver {
	case StoragePostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" || cfg.Database.User == "" {
			return fmt.Errorf("postgres storage requires database host, name and user")
		}
		if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
			return fmt.Errorf("max_idle_connections cannot exceed max_connections")
		}
		if cfg.IsProduction() && cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
		}
	case StorageSQLite:
		if cfg.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite storage requires storage.sqlite_path")
		}
	}

	if cfg.Quotes.Provider == QuoteHTTP {
		if !strings.Contains(cfg.Quotes.HTTPURL, "{symbol}") {
			return fmt.Errorf("http quote provider requires quotes.http_url containing {symbol}")
		}
		if cfg.Quotes.PricePath == "" {
			return fmt.Errorf("http quote provider requires quotes.price_path")
		}
	}

	needsAlpaca := cfg.Quotes.Provider == QuoteAlpaca || cfg.Features.LiveTradingEnabled
	if needsAlpaca && (cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "") {
		return fmt.Errorf("alpaca api_key and api_secret are required for the alpaca quote provider and live trading")
	}

	if cfg.Events.Driver == EventsKafka && (len(cfg.Events.Brokers) == 0 || cfg.Events.Topic == "") {
		return fmt.Errorf("kafka events require at least one broker and a topic")
	}

	for market, dates := range cfg.Sessions.Holidays {
		for _, d := range dates {
			if _, err := time.Parse(time.DateOnly, d); err != nil {
				return fmt.Errorf("invalid holiday %q for market %s: %w", d, market, err)
			}
		}
	}

	if cfg.Health.GRPCPort != 0 && cfg.Health.GRPCPort == cfg.Health.Port {
		return fmt.Errorf("health port and grpc_port must differ")
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: %s, got '%v'\n", field, fieldError.Param(), value)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "storagedriver":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: memory, postgres, sqlite\n", field)
		case "quoteprovider":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: simulated, http, alpaca\n", field)
		default:
			errMsg += fmt.Sprintf("- Field '%s' validation failed on '%s'\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}
