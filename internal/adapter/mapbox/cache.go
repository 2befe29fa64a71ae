package mapbox

import (
	"container/list"
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/observability"
)

// cellScale buckets coordinates to 1e-4 degrees, about 11 m.
const cellScale = 1e4

// CacheConfig bounds the reverse geocoding cache. A zero TTL keeps entries
// until they are evicted.
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed on the
// ~11 m grid cell of the queried position.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *addressCache
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, cfg CacheConfig, clock clockwork.Clock, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   newAddressCache(cfg, clock),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := cellOf(lat, lon)
	if result, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Empty results are retried on the next lookup.
	if result.FormattedAddress != "" {
		c.cache.put(key, result)
	}
	return result, nil
}

type cell struct{ lat, lon int64 }

func cellOf(lat, lon float64) cell {
	return cell{lat: int64(math.Round(lat * cellScale)), lon: int64(math.Round(lon * cellScale))}
}

type cachedAddress struct {
	key      cell
	result   domain.GeocodingResult
	storedAt time.Time
}

// addressCache is a mutex-guarded LRU with optional per-entry expiry. The
// front of order is the most recently used entry.
type addressCache struct {
	mu    sync.Mutex
	max   int
	ttl   time.Duration
	clock clockwork.Clock
	order *list.List
	byKey map[cell]*list.Element
}

func newAddressCache(cfg CacheConfig, clock clockwork.Clock) *addressCache {
	return &addressCache{
		max:   max(cfg.MaxEntries, 1),
		ttl:   cfg.TTL,
		clock: clock,
		order: list.New(),
		byKey: make(map[cell]*list.Element),
	}
}

func (c *addressCache) get(key cell) (domain.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[key]
	if !ok {
		return domain.GeocodingResult{}, false
	}
	entry := el.Value.(*cachedAddress)
	if c.ttl > 0 && c.clock.Since(entry.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.byKey, key)
		return domain.GeocodingResult{}, false
	}
	c.order.MoveToFront(el)
	return entry.result, true
}

func (c *addressCache) put(key cell, result domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if el, ok := c.byKey[key]; ok {
		entry := el.Value.(*cachedAddress)
		entry.result, entry.storedAt = result, now
		c.order.MoveToFront(el)
		return
	}

	c.byKey[key] = c.order.PushFront(&cachedAddress{key: key, result: result, storedAt: now})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.byKey, oldest.Value.(*cachedAddress).key)
	}
}

func (c *addressCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
