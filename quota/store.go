package quota

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLimitReached is returned by Store.TryReserve when the identifier has
// already used its allowance for the window.
var ErrLimitReached = errors.New("quota: limit reached")

// Store persists usage records. Implementations must make TryReserve
// atomic per identifier: two concurrent callers must never both succeed
// for the last free slot.
type Store interface {
	// CountUsage returns the number of usages recorded for identifier
	// inside w.
	CountUsage(ctx context.Context, identifier string, w Window) (int, error)

	// RecordUsage unconditionally records one usage at the given time.
	RecordUsage(ctx context.Context, identifier, url string, at time.Time) error

	// DeleteUsage removes the most recent usage of url by identifier inside
	// w. Deleting a usage that does not exist is not an error.
	DeleteUsage(ctx context.Context, identifier, url string, w Window) error

	// TryReserve records one usage at time at if fewer than limit usages
	// already exist inside w. It returns the count observed before the
	// insert, and ErrLimitReached (with that count) when the limit is hit.
	TryReserve(ctx context.Context, identifier, url string, at time.Time, w Window, limit int) (int, error)
}

type usage struct {
	url string
	at  time.Time
}

// MemoryStore is a process-local Store. Usage is lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	usage map[string][]usage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{usage: make(map[string][]usage)}
}

func (s *MemoryStore) CountUsage(_ context.Context, identifier string, w Window) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(identifier, w), nil
}

func (s *MemoryStore) RecordUsage(_ context.Context, identifier, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[identifier] = append(s.usage[identifier], usage{url: url, at: at})
	return nil
}

func (s *MemoryStore) DeleteUsage(_ context.Context, identifier, url string, w Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.usage[identifier]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].url == url && w.Contains(entries[i].at) {
			s.usage[identifier] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) TryReserve(_ context.Context, identifier, url string, at time.Time, w Window, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(identifier, w)
	used := s.countLocked(identifier, w)
	if used >= limit {
		return used, ErrLimitReached
	}
	s.usage[identifier] = append(s.usage[identifier], usage{url: url, at: at})
	return used, nil
}

func (s *MemoryStore) countLocked(identifier string, w Window) int {
	n := 0
	for _, u := range s.usage[identifier] {
		if w.Contains(u.at) {
			n++
		}
	}
	return n
}

// pruneLocked drops entries that ended before w started.
func (s *MemoryStore) pruneLocked(identifier string, w Window) {
	entries := s.usage[identifier]
	kept := entries[:0]
	for _, u := range entries {
		if !u.at.Before(w.Start) {
			kept = append(kept, u)
		}
	}
	if len(kept) == 0 {
		delete(s.usage, identifier)
		return
	}
	s.usage[identifier] = kept
}
