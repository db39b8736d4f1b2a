package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"weather-stream/datasource"
	"weather-stream/models"

	"golang.org/x/sync/singleflight"
)

// CachedDataSource wraps a DataSource and caches the latest measurement per
// station. Concurrent misses for one station share a single upstream call.
type CachedDataSource struct {
	source         datasource.DataSource
	cache          map[string]cacheEntry
	mutex          sync.RWMutex
	group          singleflight.Group
	cacheDuration  time.Duration
	cacheHitCount  int
	cacheMissCount int
	fetchTimeout   time.Duration
	now            func() time.Time
}

// sharedFetchTimeout bounds an upstream fetch detached from its callers
const sharedFetchTimeout = 30 * time.Second

// cacheEntry represents a cached measurement with its fetch time
type cacheEntry struct {
	Data      models.Measurement
	Timestamp time.Time
}

// NewCachedDataSource creates a new cached wrapper around a data source
func NewCachedDataSource(source datasource.DataSource, cacheDuration time.Duration) *CachedDataSource {
	return &CachedDataSource{
		source:        source,
		cache:         make(map[string]cacheEntry),
		cacheDuration: cacheDuration,
		fetchTimeout:  sharedFetchTimeout,
		now:           time.Now,
	}
}

// Name returns the name of the underlying data source with [Cached] suffix
func (c *CachedDataSource) Name() string {
	return c.source.Name() + " [Cached]"
}

// FetchMeasurement returns the cached measurement for the station when it is
// fresh, otherwise fetches and caches a new one
func (c *CachedDataSource) FetchMeasurement(ctx context.Context, station models.Station) (models.Measurement, error) {
	c.mutex.RLock()
	entry, found := c.cache[station.Name]
	c.mutex.RUnlock()

	if found && c.now().Sub(entry.Timestamp) < c.cacheDuration {
		c.mutex.Lock()
		c.cacheHitCount++
		c.mutex.Unlock()
		return entry.Data, nil
	}

	c.mutex.Lock()
	c.cacheMissCount++
	c.mutex.Unlock()

	// The shared fetch outlives any single caller. Each caller stops waiting
	// when its own ctx ends.
	fetchCtx := context.WithoutCancel(ctx)
	results := c.group.DoChan(station.Name, func() (interface{}, error) {
		// another caller may have refreshed the entry since our check
		c.mutex.RLock()
		entry, found := c.cache[station.Name]
		c.mutex.RUnlock()
		if found && c.now().Sub(entry.Timestamp) < c.cacheDuration {
			return entry.Data, nil
		}

		sharedCtx, cancel := context.WithTimeout(fetchCtx, c.fetchTimeout)
		defer cancel()

		data, err := c.source.FetchMeasurement(sharedCtx, station)
		if err != nil {
			return models.Measurement{}, err
		}

		c.mutex.Lock()
		c.cache[station.Name] = cacheEntry{
			Data:      data,
			Timestamp: c.now(),
		}
		c.mutex.Unlock()

		log.Printf("Cache refreshed for %s from %s", station.Name, c.source.Name())
		return data, nil
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return models.Measurement{}, res.Err
		}
		if res.Shared {
			log.Printf("Cache MISS for %s shared an in-flight fetch", station.Name)
		}
		return res.Val.(models.Measurement), nil
	case <-ctx.Done():
		return models.Measurement{}, ctx.Err()
	}
}

// CacheStats returns statistics about cache hits and misses
func (c *CachedDataSource) CacheStats() (hits, misses int) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.cacheHitCount, c.cacheMissCount
}

// Ensure CachedDataSource implements the DataSource interface
var _ datasource.DataSource = (*CachedDataSource)(nil)
