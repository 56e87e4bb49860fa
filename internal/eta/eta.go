package eta

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/example/emergency-dispatch/internal/models"
)

// Client is a routing backend returning travel time in seconds.
type Client interface {
	EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error)
}

// Store caches ETA lookups keyed by coords.
type Store interface {
	Get(a, b models.Coord) (float64, bool)
	Set(a, b models.Coord, v float64)
}

// Cache is a tiny in-memory Store.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Coord, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// EstimateSeconds is distance / speed. Used when no routing backend answers.
func EstimateSeconds(from, to models.Coord, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h default city speed
	}
	return haversine(from.Lat, from.Lon, to.Lat, to.Lon) / speedMps
}

// local haversine to avoid import cycle
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Estimator resolves an ETA through the cache, then the routing client,
// then the naive estimate. It never fails.
type Estimator struct {
	Client   Client // optional
	Cache    Store  // optional
	SpeedMps float64
	Timeout  time.Duration
}

func (e *Estimator) EstimateSeconds(from, to models.Coord) float64 {
	if e.Cache != nil {
		if v, ok := e.Cache.Get(from, to); ok {
			return v
		}
	}
	if e.Client != nil {
		timeout := e.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if v, err := e.Client.EstimateSeconds(ctx, from, to); err == nil {
			if e.Cache != nil {
				e.Cache.Set(from, to, v)
			}
			return v
		}
	}
	return EstimateSeconds(from, to, e.SpeedMps)
}

// EstimateMinutes rounds up and never reports less than 1, so a vehicle
// already at the pickup still counts down once.
func (e *Estimator) EstimateMinutes(from, to models.Coord) int {
	m := int(math.Ceil(e.EstimateSeconds(from, to) / 60))
	if m < 1 {
		return 1
	}
	return m
}
