package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/points_trading/internal/domain"
)

// PriceFreshness is how long a cached quote satisfies interactive reads
// without triggering a fetch.
const PriceFreshness = 30 * time.Second

type cachedPrice struct {
	price      float64
	observedAt time.Time
}

// PriceCache memoizes the last known price per symbol.
//
// Get honors the freshness window and is meant for reads that prefer not to
// hit the network at all. GetOrFetch always attempts a fresh fetch and only
// falls back to the cached value (of any age) when the fetch fails, so a
// failed fetch never suppresses the attempt on the next cycle.
type PriceCache struct {
	mu      sync.RWMutex
	prices  map[string]cachedPrice
	timeNow func() time.Time // For testing
}

func NewPriceCache() *PriceCache {
	return &PriceCache{
		prices:  make(map[string]cachedPrice),
		timeNow: time.Now,
	}
}

// Get returns the cached price if it is still fresh.
func (c *PriceCache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.prices[symbol]
	if !ok {
		return 0, false
	}
	if c.timeNow().Sub(entry.observedAt) >= PriceFreshness {
		return 0, false
	}
	return entry.price, true
}

// Last returns the last known price regardless of age.
func (c *PriceCache) Last(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.prices[symbol]
	if !ok {
		return 0, false
	}
	return entry.price, true
}

// Put stores a price observed now.
func (c *PriceCache) Put(symbol string, price float64) {
	c.mu.Lock()
	c.prices[symbol] = cachedPrice{price: price, observedAt: c.timeNow()}
	c.mu.Unlock()
}

// GetOrFetch fetches a fresh quote via the source and caches it. On fetch
// failure it falls back to the last cached value; domain.ErrPriceUnavailable
// is returned only when no price was ever cached for the symbol.
func (c *PriceCache) GetOrFetch(ctx context.Context, symbol, category string, source domain.PriceSource) (float64, error) {
	price, err := source.FetchPrice(ctx, symbol, category)
	if err == nil && price > 0 {
		c.Put(symbol, price)
		return price, nil
	}

	if last, ok := c.Last(symbol); ok {
		return last, nil
	}
	return 0, domain.ErrPriceUnavailable
}

// Snapshot returns the last known price for each requested symbol. Symbols
// that were never quoted are omitted.
func (c *PriceCache) Snapshot(symbols []string) map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if entry, ok := c.prices[s]; ok {
			snap[s] = entry.price
		}
	}
	return snap
}
