package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hjemla/easeewatch/internal/models"
)

// FetchFunc produces a fresh, ordered set of charger states.
type FetchFunc func(ctx context.Context) ([]models.ChargerState, error)

// entry pairs a result with the time it was fetched. Entries are replaced
// wholesale under the cache lock, never patched, so a reader always sees a
// value and timestamp produced by the same fetch.
type entry struct {
	states    []models.ChargerState
	fetchedAt time.Time
}

// TelemetryCache is a time-boxed cache over the fetch pipeline, shared by the
// HTTP handlers. Concurrent misses collapse into a single upstream fetch.
type TelemetryCache struct {
	logger *zap.Logger
	fetch  FetchFunc

	mu    sync.RWMutex
	entry *entry

	sf  singleflight.Group
	now func() time.Time
}

// New creates an empty telemetry cache around the given fetch function.
func New(logger *zap.Logger, fetch FetchFunc) *TelemetryCache {
	return &TelemetryCache{
		logger: logger,
		fetch:  fetch,
		now:    time.Now,
	}
}

// GetOrRefresh returns the cached states if they are younger than ttl, and
// otherwise performs exactly one fetch regardless of how many callers miss at
// the same time. On fetch failure the error is returned to every waiting
// caller; a stale entry is kept for the next window check, not served.
func (c *TelemetryCache) GetOrRefresh(ctx context.Context, ttl time.Duration) ([]models.ChargerState, error) {
	if states, ok := c.fresh(ttl); ok {
		return states, nil
	}

	v, err, shared := c.sf.Do("chargers", func() (interface{}, error) {
		// A flight that finished between the miss and the Do already
		// refreshed the entry; don't fetch again.
		if states, ok := c.fresh(ttl); ok {
			return states, nil
		}

		states, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}

		fetchedAt := c.now()
		c.mu.Lock()
		c.entry = &entry{states: states, fetchedAt: fetchedAt}
		c.mu.Unlock()

		c.logger.Debug("Cache refreshed",
			zap.Int("chargers", len(states)),
			zap.Time("fetched_at", fetchedAt))
		return states, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("Cache miss joined in-flight fetch")
	}

	return v.([]models.ChargerState), nil
}

// Cached returns the current entry without consulting the TTL, for consumers
// that want whatever was last fetched (e.g. the websocket init payload).
func (c *TelemetryCache) Cached() ([]models.ChargerState, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return nil, time.Time{}, false
	}
	return c.entry.states, c.entry.fetchedAt, true
}

func (c *TelemetryCache) fresh(ttl time.Duration) ([]models.ChargerState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return nil, false
	}
	if c.now().Sub(c.entry.fetchedAt) >= ttl {
		return nil, false
	}
	return c.entry.states, true
}
