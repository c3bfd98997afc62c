package llm

import (
	"sync"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// cacheEntry is a cached extraction. A nil transaction records a confirmed miss.
type cacheEntry struct {
	expiry time.Time
	txn    *model.ParsedTransaction
}

// resultCache holds extraction results keyed by body hash, so replays of the same
// email do not spend another model call.
type resultCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
}

func newResultCache(ttl time.Duration) *resultCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &resultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get returns a copy of the cached result so callers cannot mutate the entry.
func (c *resultCache) get(key string) (*model.ParsedTransaction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return nil, false
	}
	if entry.txn == nil {
		return nil, true
	}
	txn := *entry.txn
	return &txn, true
}

func (c *resultCache) set(key string, txn *model.ParsedTransaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stored *model.ParsedTransaction
	if txn != nil {
		cp := *txn
		stored = &cp
	}
	c.entries[key] = cacheEntry{
		txn:    stored,
		expiry: time.Now().Add(c.ttl),
	}
}

func (c *resultCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *resultCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine.
func (c *resultCache) Close() {
	close(c.stopCh)
}
