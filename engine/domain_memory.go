package engine

import (
	"sync"
	"time"
)

// DefaultDomainMemoryTTL is how long a winning engine is remembered.
const DefaultDomainMemoryTTL = time.Hour

// domainEntry stores the preferred engine for a host with an expiry.
type domainEntry struct {
	engineName string
	expiresAt  time.Time
}

// DomainMemory remembers which engine last rendered each host
// successfully, so repeat analyses of a site skip the race.
type DomainMemory struct {
	mu      sync.Mutex
	entries map[string]domainEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewDomainMemory creates a DomainMemory whose entries live for ttl.
// Expired entries are dropped lazily on lookup and on Set.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	if ttl <= 0 {
		ttl = DefaultDomainMemoryTTL
	}
	return &DomainMemory{
		entries: make(map[string]domainEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the remembered engine name for host, or "" if none.
func (dm *DomainMemory) Get(host string) string {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	entry, ok := dm.entries[host]
	if !ok {
		return ""
	}
	if !dm.now().Before(entry.expiresAt) {
		delete(dm.entries, host)
		return ""
	}
	return entry.engineName
}

// Set records which engine succeeded for host.
func (dm *DomainMemory) Set(host, engineName string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	now := dm.now()
	for h, e := range dm.entries {
		if !now.Before(e.expiresAt) {
			delete(dm.entries, h)
		}
	}
	dm.entries[host] = domainEntry{engineName: engineName, expiresAt: now.Add(dm.ttl)}
}

// Delete forgets host, e.g. after its remembered engine failed.
func (dm *DomainMemory) Delete(host string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.entries, host)
}

// Len returns the number of stored entries, including expired ones not
// yet dropped.
func (dm *DomainMemory) Len() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.entries)
}
