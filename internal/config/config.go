// Package config provides configuration management for the Quantopia application.
package config

import (
	"fmt"
	"time"
)

// Storage drivers
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Quote providers
const (
	QuoteSimulated = "simulated"
	QuoteHTTP      = "http"
	QuoteAlpaca    = "alpaca"
)

// Event publishers
const (
	EventsNone  = "none"
	EventsKafka = "kafka"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Quotes   QuoteConfig    `mapstructure:"quotes" validate:"required"`
	Alpaca   AlpacaConfig   `mapstructure:"alpaca"`
	Engine   EngineConfig   `mapstructure:"engine" validate:"required"`
	Backtest BacktestConfig `mapstructure:"backtest" validate:"required"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Events   EventsConfig   `mapstructure:"events" validate:"required"`
	API      APIConfig      `mapstructure:"api" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics" validate:"required"`
	Health   HealthConfig   `mapstructure:"health" validate:"required"`
	Datasets DatasetConfig  `mapstructure:"datasets" validate:"required"`
	Features FeaturesConfig `mapstructure:"features"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// StorageConfig selects where tasks, price points, trades and backtests persist
type StorageConfig struct {
	Driver     string `mapstructure:"driver" validate:"required,storagedriver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig represents PostgreSQL connection configuration. Only used with the
// postgres storage driver.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"omitempty,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"omitempty,gt=0"`
}

// QuoteConfig configures the market data source for live and paper tasks
type QuoteConfig struct {
	Provider          string  `mapstructure:"provider" validate:"required,quoteprovider"`
	HTTPURL           string  `mapstructure:"http_url"`
	PricePath         string  `mapstructure:"price_path"`
	TimestampPath     string  `mapstructure:"timestamp_path"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" validate:"gt=0"`
	RetryMax          int     `mapstructure:"retry_max" validate:"gte=0"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" validate:"gt=0"`
	CacheTTLMillis    int     `mapstructure:"cache_ttl_millis" validate:"gte=0"`
	SimulatedSeed     int64   `mapstructure:"simulated_seed"`
	SimulatedStart    float64 `mapstructure:"simulated_start" validate:"gt=0"`
	SimulatedStep     float64 `mapstructure:"simulated_step" validate:"gte=0,lt=1"`
}

// AlpacaConfig holds broker and market data credentials
type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url" validate:"omitempty,url"`
	DataURL   string `mapstructure:"data_url" validate:"omitempty,url"`
	DataFeed  string `mapstructure:"data_feed" validate:"omitempty,oneof=iex sip"`
}

// EngineConfig tunes the live task engine
type EngineConfig struct {
	QuoteTimeoutSeconds    int     `mapstructure:"quote_timeout_seconds" validate:"gt=0"`
	OrderTimeoutSeconds    int     `mapstructure:"order_timeout_seconds" validate:"gt=0"`
	PersistTimeoutSeconds  int     `mapstructure:"persist_timeout_seconds" validate:"gt=0"`
	RecentPoints           int     `mapstructure:"recent_points" validate:"gt=0"`
	MaxConsecutiveFailures int     `mapstructure:"max_consecutive_failures" validate:"gt=0"`
	PeriodsPerYear         float64 `mapstructure:"periods_per_year" validate:"gte=0"`
	RestoreOnStart         bool    `mapstructure:"restore_on_start"`
}

// BacktestConfig represents backtesting configuration
type BacktestConfig struct {
	InitialCash          float64 `mapstructure:"initial_cash" validate:"gt=0"`
	CommissionFlat       float64 `mapstructure:"commission_flat" validate:"gte=0"`
	CommissionRate       float64 `mapstructure:"commission_rate" validate:"gte=0,lt=1"`
	LotSize              float64 `mapstructure:"lot_size" validate:"gt=0"`
	MaxPositionRatio     float64 `mapstructure:"max_position_ratio" validate:"gt=0,lte=1"`
	PeriodsPerYear       float64 `mapstructure:"periods_per_year" validate:"gte=0"`
	OutputPath           string  `mapstructure:"output_path" validate:"required"`
	SweepConcurrency     int     `mapstructure:"sweep_concurrency" validate:"gt=0"`
	MonteCarloIterations int     `mapstructure:"monte_carlo_iterations" validate:"gt=0"`
	MonteCarloSeed       int64   `mapstructure:"monte_carlo_seed"`
	WalkForwardWindows   int     `mapstructure:"walk_forward_windows" validate:"gt=0"`
}

// SessionsConfig lists exchange holidays per market as YYYY-MM-DD dates
type SessionsConfig struct {
	Holidays map[string][]string `mapstructure:"holidays"`
}

// EventsConfig selects the task event publisher
type EventsConfig struct {
	Driver  string   `mapstructure:"driver" validate:"required,oneof=none kafka"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// APIConfig represents the HTTP control surface configuration
type APIConfig struct {
	Address                 string `mapstructure:"address" validate:"required"`
	StreamIntervalSeconds   int    `mapstructure:"stream_interval_seconds" validate:"gt=0"`
	ShutdownTimeoutSeconds  int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
	MaxBacktestSeriesLength int    `mapstructure:"max_backtest_series_length" validate:"gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required"`
}

// HealthConfig represents the liveness and readiness servers
type HealthConfig struct {
	Port     int `mapstructure:"port" validate:"required,min=1,max=65535"`
	GRPCPort int `mapstructure:"grpc_port" validate:"omitempty,min=1,max=65535"`
}

// DatasetConfig locates dataset files
type DatasetConfig struct {
	Directory string `mapstructure:"directory" validate:"required"`
}

// FeaturesConfig represents feature flags
type FeaturesConfig struct {
	LiveTradingEnabled bool `mapstructure:"live_trading_enabled"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// QuoteTimeout returns the per-call quote deadline
func (e EngineConfig) QuoteTimeout() time.Duration {
	return time.Duration(e.QuoteTimeoutSeconds) * time.Second
}

// OrderTimeout returns the per-call order deadline
func (e EngineConfig) OrderTimeout() time.Duration {
	return time.Duration(e.OrderTimeoutSeconds) * time.Second
}

// PersistTimeout returns the per-write store deadline
func (e EngineConfig) PersistTimeout() time.Duration {
	return time.Duration(e.PersistTimeoutSeconds) * time.Second
}

// CacheTTL returns how long a fetched quote is reused
func (q QuoteConfig) CacheTTL() time.Duration {
	return time.Duration(q.CacheTTLMillis) * time.Millisecond
}
