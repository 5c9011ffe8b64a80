package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"

	"ratefeed/internal/domain"
)

type entry struct {
	rates    []domain.RawRate
	storedAt time.Time
}

// RistrettoRawRateCache keeps each source's last-known-good raw rates.
// Entries are only written after a successful non-empty fetch, so a lookup
// either returns usable data or nothing.
type RistrettoRawRateCache struct {
	cache *ristretto.Cache

	mu  sync.Mutex
	ids map[string]struct{}

	onExpired func(sourceID string)
}

// NewRawRateCache builds the cache. onExpired, when non-nil, is invoked for
// lookups refused because the entry exceeded the staleness bound.
func NewRawRateCache(maxSources int64, onExpired func(sourceID string)) (*RistrettoRawRateCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * maxSources,
		MaxCost:     maxSources,
		BufferItems: 64,
		// Cost accounting is one unit per source; without this flag
		// ristretto adds its per-item overhead and rejects every Set.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create raw rate cache failed: %w", err)
	}
	return &RistrettoRawRateCache{
		cache:     c,
		ids:       make(map[string]struct{}),
		onExpired: onExpired,
	}, nil
}

// Get returns the source's cached rates. A maxAge of zero means entries
// never expire.
func (c *RistrettoRawRateCache) Get(sourceID string, maxAge time.Duration) ([]domain.RawRate, bool) {
	v, ok := c.cache.Get(sourceID)
	if !ok {
		return nil, false
	}
	e, ok := v.(entry)
	if !ok {
		return nil, false
	}
	if maxAge > 0 && time.Since(e.storedAt) > maxAge {
		logrus.Warnf("Cached rates for source %s exceed max age %s, discarding", sourceID, maxAge)
		if c.onExpired != nil {
			c.onExpired(sourceID)
		}
		return nil, false
	}
	return e.rates, true
}

// Set stores the source's latest successful result.
func (c *RistrettoRawRateCache) Set(sourceID string, rates []domain.RawRate) {
	c.mu.Lock()
	c.ids[sourceID] = struct{}{}
	c.mu.Unlock()
	c.cache.Set(sourceID, entry{rates: rates, storedAt: time.Now()}, 1)
}

// All returns the union of every source's cached rates within the bound.
func (c *RistrettoRawRateCache) All(maxAge time.Duration) []domain.RawRate {
	c.mu.Lock()
	ids := make([]string, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var all []domain.RawRate
	for _, id := range ids {
		if rates, ok := c.Get(id, maxAge); ok {
			all = append(all, rates...)
		}
	}
	return all
}

// Wait blocks until pending writes are visible. Ristretto applies sets
// asynchronously; tests need this before asserting on Get.
func (c *RistrettoRawRateCache) Wait() { c.cache.Wait() }

func (c *RistrettoRawRateCache) Close() { c.cache.Close() }
