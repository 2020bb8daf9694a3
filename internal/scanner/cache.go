package scanner

import (
	"fmt"
	"sync"
	"time"

	"candle-scanner/internal/market"
)

type cachedDetections struct {
	detections []Detection
	expiresAt  time.Time
}

// resultCache memoizes per-symbol detector output with a TTL. The key folds
// in the last bar's timestamp, so a series that has advanced always misses.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]cachedDetections
	ttl     time.Duration
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		entries: make(map[string]cachedDetections),
		ttl:     ttl,
	}
}

func cacheKey(symbol string, bars market.Series) string {
	if len(bars) == 0 {
		return symbol
	}
	return fmt.Sprintf("%s@%d", symbol, bars.Last().Time.UnixNano())
}

func (rc *resultCache) get(key string) ([]Detection, bool) {
	if rc == nil {
		return nil, false
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	cached, ok := rc.entries[key]
	if !ok || time.Now().After(cached.expiresAt) {
		return nil, false
	}
	return cached.detections, true
}

func (rc *resultCache) set(key string, detections []Detection) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.entries[key] = cachedDetections{
		detections: detections,
		expiresAt:  time.Now().Add(rc.ttl),
	}
}

func (rc *resultCache) cleanupExpired() {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := time.Now()
	for key, cached := range rc.entries {
		if now.After(cached.expiresAt) {
			delete(rc.entries, key)
		}
	}
}
