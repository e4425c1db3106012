package quote

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantopia/internal/config"
)

// NewFromConfig builds the configured provider, instrumented and cached
func NewFromConfig(cfg *config.Config, logger *logrus.Logger) (Provider, error) {
	var (
		base Provider
		err  error
	)

	q := cfg.Quotes
	switch q.Provider {
	case config.QuoteSimulated:
		base, err = NewSimulatedProvider(SimulatedConfig{
			Seed:  q.SimulatedSeed,
			Start: q.SimulatedStart,
			Step:  q.SimulatedStep,
		})
	case config.QuoteHTTP:
		httpCfg := DefaultHTTPConfig()
		httpCfg.URLTemplate = q.HTTPURL
		httpCfg.PricePath = q.PricePath
		httpCfg.TimestampPath = q.TimestampPath
		httpCfg.Timeout = time.Duration(q.TimeoutSeconds) * time.Second
		httpCfg.MaxRetries = q.RetryMax
		httpCfg.RequestsPerSecond = q.RequestsPerSecond
		httpCfg.Burst = q.Burst
		base, err = NewHTTPProvider(httpCfg, logger)
	case config.QuoteAlpaca:
		base, err = NewAlpacaProvider(AlpacaConfig{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.APISecret,
			DataURL:   cfg.Alpaca.DataURL,
			Feed:      cfg.Alpaca.DataFeed,
		})
	default:
		return nil, fmt.Errorf("unsupported quote provider: %s", q.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s quote provider: %w", q.Provider, err)
	}

	return NewCachedProvider(WithMetrics(q.Provider, base), q.CacheTTL()), nil
}
