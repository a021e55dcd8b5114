package intent

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// resultCache remembers classifications for repeat requests, eliminating
// generator calls for inputs the platform has already seen. The LRU expiry
// is the ceiling; a TTLProvider tightens freshness per intent, so volatile
// intents re-classify sooner than the cache would otherwise allow.
type resultCache struct {
	lru  *expirable.LRU[string, cachedOutcome]
	ttls TTLProvider
}

type cachedOutcome struct {
	outcome  Outcome
	cachedAt time.Time
}

func newResultCache(size int, maxTTL time.Duration, ttls TTLProvider) *resultCache {
	return &resultCache{
		lru:  expirable.NewLRU[string, cachedOutcome](size, nil, maxTTL),
		ttls: ttls,
	}
}

func (c *resultCache) get(key string) (Outcome, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return Outcome{}, false
	}
	if c.stale(entry) {
		c.lru.Remove(key)
		return Outcome{}, false
	}
	return entry.outcome, true
}

func (c *resultCache) stale(entry cachedOutcome) bool {
	if c.ttls == nil {
		return false
	}
	ttl := c.ttls.CacheTTL(entry.outcome.Intent)
	if ttl <= 0 {
		return false
	}
	return time.Since(entry.cachedAt) > ttl
}

func (c *resultCache) put(key string, outcome Outcome) {
	c.lru.Add(key, cachedOutcome{outcome: outcome, cachedAt: time.Now()})
}
