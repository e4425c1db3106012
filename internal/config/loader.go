package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "QUANTOPIA"
	defaultConfigPath = "config/config.yaml"
)

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Read the configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return unmarshal(v)
}

// LoadWithDefaults loads configuration with default values for every field. A
// missing file is not an error: defaults and environment variables are used.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	// Read and expand the configuration file if it exists
	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quantopia")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.sqlite_path", "data/quantopia.db")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "quantopia")
	v.SetDefault("database.user", "quantopia")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 2)

	v.SetDefault("quotes.provider", QuoteSimulated)
	v.SetDefault("quotes.price_path", "price")
	v.SetDefault("quotes.requests_per_second", 5.0)
	v.SetDefault("quotes.burst", 5)
	v.SetDefault("quotes.retry_max", 3)
	v.SetDefault("quotes.timeout_seconds", 10)
	v.SetDefault("quotes.cache_ttl_millis", 1000)
	v.SetDefault("quotes.simulated_seed", 42)
	v.SetDefault("quotes.simulated_start", 100.0)
	v.SetDefault("quotes.simulated_step", 0.005)

	v.SetDefault("alpaca.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("alpaca.data_feed", "iex")
	v.SetDefault("alpaca.data_url", "https://data.alpaca.markets")

	v.SetDefault("engine.quote_timeout_seconds", 10)
	v.SetDefault("engine.order_timeout_seconds", 15)
	v.SetDefault("engine.persist_timeout_seconds", 5)
	v.SetDefault("engine.recent_points", 100)
	v.SetDefault("engine.max_consecutive_failures", 5)
	v.SetDefault("engine.periods_per_year", 252.0)
	v.SetDefault("engine.restore_on_start", true)

	v.SetDefault("backtest.initial_cash", 100000.0)
	v.SetDefault("backtest.commission_flat", 5.0)
	v.SetDefault("backtest.commission_rate", 0.0)
	v.SetDefault("backtest.lot_size", 1.0)
	v.SetDefault("backtest.max_position_ratio", 1.0)
	v.SetDefault("backtest.periods_per_year", 252.0)
	v.SetDefault("backtest.output_path", "output/backtest")
	v.SetDefault("backtest.sweep_concurrency", 4)
	v.SetDefault("backtest.monte_carlo_iterations", 1000)
	v.SetDefault("backtest.monte_carlo_seed", 42)
	v.SetDefault("backtest.walk_forward_windows", 4)

	v.SetDefault("events.driver", EventsNone)
	v.SetDefault("events.topic", "quantopia.task-events")

	v.SetDefault("api.address", ":8080")
	v.SetDefault("api.stream_interval_seconds", 2)
	v.SetDefault("api.shutdown_timeout_seconds", 15)
	v.SetDefault("api.max_backtest_series_length", 100000)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("health.port", 8081)
	v.SetDefault("health.grpc_port", 9090)

	v.SetDefault("datasets.directory", "data/datasets")
}
