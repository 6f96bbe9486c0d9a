package cache

import (
	"testing"
	"time"

	"github.com/use-agent/sitegrade/models"
)

func newTestCache(t *testing.T, maxEntries int, ttl time.Duration) (*Cache, *time.Time) {
	t.Helper()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	c := New(maxEntries, ttl)
	c.now = func() time.Time { return now }
	t.Cleanup(c.Close)
	return c, &now
}

func TestCache_GetSet(t *testing.T) {
	c, now := newTestCache(t, 10, time.Minute)
	key := Key("https://example.com", "browser")
	page := &models.RenderedPage{URL: "https://example.com", StatusCode: 200}

	if _, ok := c.Get(key); ok {
		t.Fatal("hit on empty cache")
	}
	c.Set(key, page)

	got, ok := c.Get(key)
	if !ok || got != page {
		t.Fatalf("Get = (%v, %v), want stored page", got, ok)
	}

	*now = now.Add(time.Minute)
	if _, ok := c.Get(key); ok {
		t.Error("hit after ttl elapsed")
	}

	c.evictExpired()
	if c.Len() != 0 {
		t.Errorf("Len after eviction = %d, want 0", c.Len())
	}
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c, now := newTestCache(t, 2, time.Hour)

	c.Set("a", &models.RenderedPage{URL: "a"})
	*now = now.Add(time.Second)
	c.Set("b", &models.RenderedPage{URL: "b"})
	*now = now.Add(time.Second)
	c.Set("c", &models.RenderedPage{URL: "c"})

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("entry %q missing", k)
		}
	}

	// Overwriting an existing key does not evict.
	c.Set("c", &models.RenderedPage{URL: "c2"})
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestKey(t *testing.T) {
	if Key("https://a.com", "http") == Key("https://a.com", "browser") {
		t.Error("engine must change the key")
	}
	if Key("https://a.com", "http") != Key("https://a.com", "http") {
		t.Error("Key is not deterministic")
	}
}
