package quote

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/yourusername/quantopia/internal/metrics"
	"github.com/yourusername/quantopia/internal/models"
)

// CachedProvider collapses calls for the same symbol and mode within ttl. Tasks
// sampling one symbol at a high rate then share a single upstream request.
type CachedProvider struct {
	next  Provider
	cache *cache.Cache
	ttl   time.Duration
}

// NewCachedProvider wraps next with a quote cache. A non-positive ttl disables caching.
func NewCachedProvider(next Provider, ttl time.Duration) Provider {
	if ttl <= 0 {
		return next
	}
	return &CachedProvider{
		next:  next,
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

func cacheKey(symbol string, mode models.Mode) string {
	return string(mode) + ":" + symbol
}

// GetPrice implements Provider
func (c *CachedProvider) GetPrice(ctx context.Context, symbol string, mode models.Mode) (models.PricePoint, error) {
	key := cacheKey(symbol, mode)
	if cached, found := c.cache.Get(key); found {
		if point, ok := cached.(models.PricePoint); ok {
			metrics.RecordQuoteCacheHit()
			return point, nil
		}
	}

	point, err := c.next.GetPrice(ctx, symbol, mode)
	if err != nil {
		return models.PricePoint{}, err
	}
	c.cache.Set(key, point, c.ttl)
	return point, nil
}

// Flush drops every cached quote
func (c *CachedProvider) Flush() {
	c.cache.Flush()
}
