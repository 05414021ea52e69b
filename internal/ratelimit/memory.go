package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps one timestamp log per key in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	entries map[string][]time.Time
}

// NewMemoryStore allows limit requests per window. A limit below 1 is
// treated as 1.
func NewMemoryStore(window time.Duration, limit int) *MemoryStore {
	if limit < 1 {
		limit = 1
	}
	return &MemoryStore{
		window:  window,
		limit:   limit,
		entries: make(map[string][]time.Time),
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits := trim(s.entries[key], now.Add(-s.window))
	if len(hits) >= s.limit {
		s.entries[key] = hits
		return Result{Allowed: false, Oldest: hits[0]}, nil
	}

	s.entries[key] = append(hits, now)
	return Result{Allowed: true}, nil
}

// Prune drops keys with no request inside the window and returns how many
// were removed.
func (s *MemoryStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.window)
	removed := 0
	for key, hits := range s.entries {
		hits = trim(hits, cutoff)
		if len(hits) == 0 {
			delete(s.entries, key)
			removed++
			continue
		}
		s.entries[key] = hits
	}
	return removed
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// trim drops timestamps at or before cutoff. hits is sorted ascending.
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
