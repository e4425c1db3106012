package quote

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/yourusername/quantopia/internal/models"
)

// SimulatedConfig configures the random-walk provider
type SimulatedConfig struct {
	Seed  int64
	Start float64
	// Step is the maximum absolute move per call, as a fraction of the price.
	Step float64
	Now  func() time.Time
}

// SimulatedProvider produces a seeded random walk per symbol. The sequence for a
// symbol is fully determined by the seed and the number of calls.
type SimulatedProvider struct {
	cfg SimulatedConfig

	mu     sync.Mutex
	walks  map[string]*walk
	failed map[string]int
}

type walk struct {
	rng   *rand.Rand
	price float64
}

// NewSimulatedProvider creates a random-walk provider
func NewSimulatedProvider(cfg SimulatedConfig) (*SimulatedProvider, error) {
	if cfg.Start <= 0 {
		return nil, models.NewConfigurationError("simulated_start", "must be positive, got %v", cfg.Start)
	}
	if cfg.Step < 0 || cfg.Step >= 1 {
		return nil, models.NewConfigurationError("simulated_step", "must be in [0,1), got %v", cfg.Step)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SimulatedProvider{
		cfg:    cfg,
		walks:  make(map[string]*walk),
		failed: make(map[string]int),
	}, nil
}

// FailNext makes the next n calls for symbol fail with a transient error
func (p *SimulatedProvider) FailNext(symbol string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[symbol] += n
}

// GetPrice implements Provider
func (p *SimulatedProvider) GetPrice(ctx context.Context, symbol string, _ models.Mode) (models.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return models.PricePoint{}, transient("simulated quote", symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failed[symbol] > 0 {
		p.failed[symbol]--
		return models.PricePoint{}, transient("simulated quote", symbol, fmt.Errorf("injected failure"))
	}

	w, ok := p.walks[symbol]
	if !ok {
		w = &walk{rng: rand.New(rand.NewSource(p.cfg.Seed + symbolSeed(symbol))), price: p.cfg.Start}
		p.walks[symbol] = w
	} else {
		move := (w.rng.Float64()*2 - 1) * p.cfg.Step
		w.price = math.Max(0.01, math.Round(w.price*(1+move)*100)/100)
	}
	return models.PricePoint{Timestamp: p.cfg.Now(), Price: w.price}, nil
}

// symbolSeed derives a stable per-symbol offset (FNV-1a)
func symbolSeed(symbol string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(symbol); i++ {
		h ^= uint64(symbol[i])
		h *= 1099511628211
	}
	return int64(h >> 1)
}
