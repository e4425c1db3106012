package quote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/yourusername/quantopia/internal/models"
)

// maxBodyBytes bounds how much of a quote response is read
const maxBodyBytes = 1 << 20

// HTTPConfig configures a quote endpoint that returns JSON
type HTTPConfig struct {
	// URLTemplate contains "{symbol}", replaced by the path-escaped symbol.
	URLTemplate string
	// PricePath and TimestampPath are gjson paths into the response body.
	// TimestampPath is optional; the receive time is used when it is empty or missing.
	PricePath     string
	TimestampPath string

	Timeout           time.Duration
	MaxRetries        int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DefaultHTTPConfig returns recommended defaults
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:           5 * time.Second,
		MaxRetries:        2,
		RetryWaitMin:      100 * time.Millisecond,
		RetryWaitMax:      2 * time.Second,
		RequestsPerSecond: 10,
		Burst:             1,
	}
}

// HTTPProvider polls a JSON quote endpoint through a rate-limited retrying client
type HTTPProvider struct {
	cfg     HTTPConfig
	client  *retryablehttp.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewHTTPProvider creates an HTTP quote provider
func NewHTTPProvider(cfg HTTPConfig, logger *logrus.Logger) (*HTTPProvider, error) {
	if !strings.Contains(cfg.URLTemplate, "{symbol}") {
		return nil, models.NewConfigurationError("http_url", "must contain {symbol}")
	}
	if cfg.PricePath == "" {
		return nil, models.NewConfigurationError("price_path", "is required")
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultHTTPConfig().RequestsPerSecond
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = customRetryPolicy()
	if logger != nil {
		retryClient.Logger = logger.WithField("component", "quote_http")
	} else {
		retryClient.Logger = nil
	}

	return &HTTPProvider{
		cfg:     cfg,
		client:  retryClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		now:     time.Now,
	}, nil
}

// GetPrice implements Provider
func (p *HTTPProvider) GetPrice(ctx context.Context, symbol string, _ models.Mode) (models.PricePoint, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return models.PricePoint{}, transient("http quote", symbol, fmt.Errorf("rate limiter: %w", err))
	}

	target := strings.ReplaceAll(p.cfg.URLTemplate, "{symbol}", url.PathEscape(symbol))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return models.PricePoint{}, fmt.Errorf("failed to build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.PricePoint{}, transient("http quote", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.PricePoint{}, transient("http quote", symbol, fmt.Errorf("failed to read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return models.PricePoint{}, transient("http quote", symbol, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return p.parse(symbol, body)
}

func (p *HTTPProvider) parse(symbol string, body []byte) (models.PricePoint, error) {
	if !gjson.ValidBytes(body) {
		return models.PricePoint{}, transient("http quote", symbol, fmt.Errorf("response is not valid JSON"))
	}
	price := gjson.GetBytes(body, p.cfg.PricePath)
	if !price.Exists() {
		return models.PricePoint{}, transient("http quote", symbol, fmt.Errorf("no value at %q", p.cfg.PricePath))
	}
	value := price.Float()
	if value <= 0 {
		return models.PricePoint{}, transient("http quote", symbol, fmt.Errorf("non-positive price %q", price.Raw))
	}

	point := models.PricePoint{Price: value, Timestamp: p.now()}
	if p.cfg.TimestampPath != "" {
		if ts, ok := parseTimestamp(gjson.GetBytes(body, p.cfg.TimestampPath)); ok {
			point.Timestamp = ts
		}
	}
	return point, nil
}

// parseTimestamp accepts RFC 3339 strings and unix seconds or milliseconds
func parseTimestamp(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		ts, err := time.Parse(time.RFC3339Nano, v.String())
		return ts.UTC(), err == nil
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return time.Time{}, false
		}
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

// Close releases idle connections
func (p *HTTPProvider) Close() error {
	p.client.HTTPClient.CloseIdleConnections()
	return nil
}

// customRetryPolicy retries network errors, 429 and gateway/server errors
func customRetryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, err
		}
		switch resp.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true, nil
		}
		return false, nil
	}
}
