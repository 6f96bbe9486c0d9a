// Package cache keeps recently rendered pages so repeat analyses of the
// same URL skip the browser.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/sitegrade/models"
)

// entry holds a cached page with its creation timestamp.
type entry struct {
	page      *models.RenderedPage
	createdAt time.Time
}

// Cache is an in-memory, TTL-bounded render cache.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache holding at most maxEntries pages for ttl each.
// A background goroutine evicts expired entries until Close.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop(max(ttl, time.Minute))
	return c
}

// Key generates a cache key from the URL and the engine that renders it.
func Key(url, engine string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(engine))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached page for key if it is younger than the TTL.
func (c *Cache) Get(key string) (*models.RenderedPage, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) >= c.ttl {
		return nil, false
	}
	return e.page, true
}

// Set stores a page. If the cache is at capacity, the oldest entry is
// evicted to make room.
func (c *Cache) Set(key string, page *models.RenderedPage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var (
			oldestKey string
			oldest    time.Time
		)
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[key] = &entry{
		page:      page,
		createdAt: c.now(),
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if !e.createdAt.After(cutoff) {
			delete(c.store, k)
		}
	}
}

func (c *Cache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}
