package dashboard

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sells-group/crm-dedupe/internal/pipeline"
)

const defaultResultTTL = time.Hour

// resultCache keeps the full results of recent runs in memory. Only run
// summaries are persisted, so cluster views and downloads are available for
// cached runs only. Entries expire after the TTL; once the cache holds max
// entries the least recently used one is evicted before a new Set.
type resultCache struct {
	mu    sync.Mutex
	store *gocache.Cache
	max   int
	ttl   time.Duration
}

func newResultCache(capacity int, ttl time.Duration) *resultCache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	return &resultCache{
		store: gocache.New(ttl, ttl/2),
		max:   capacity,
		ttl:   ttl,
	}
}

func (c *resultCache) put(runID string, res *pipeline.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.store.Get(runID); !ok {
		for c.store.ItemCount() >= c.max {
			c.evictOldest()
		}
	}
	c.store.Set(runID, res, gocache.DefaultExpiration)
}

func (c *resultCache) get(runID string) (*pipeline.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.store.Get(runID)
	if !ok {
		return nil, false
	}
	// Re-setting pushes the expiration out, which also marks the entry as
	// most recently used.
	c.store.Set(runID, v, gocache.DefaultExpiration)
	return v.(*pipeline.Result), true
}

// evictOldest drops the entry closest to expiry. Every entry shares one TTL,
// so that is the least recently used.
func (c *resultCache) evictOldest() {
	var (
		oldest string
		at     int64
	)
	for k, item := range c.store.Items() {
		if oldest == "" || item.Expiration < at {
			oldest, at = k, item.Expiration
		}
	}
	if oldest == "" {
		c.store.DeleteExpired()
		return
	}
	c.store.Delete(oldest)
}

func (c *resultCache) size() int {
	return c.store.ItemCount()
}
