package database

import (
	"context"
	"sync"
	"time"
)

// lapsed windows are purged once the map grows past this
const rateLimitEvictThreshold = 4096

type rateWindow struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimitStore is a fixed-window counter for single-instance deployments
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
}

// NewMemoryRateLimitStore creates an empty store
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{windows: make(map[string]*rateWindow)}
}

// Hit counts a request for key in the window that contains now
func (s *MemoryRateLimitStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		if len(s.windows) >= rateLimitEvictThreshold {
			s.evict(now)
		}
		w = &rateWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

// evict drops lapsed windows; caller holds mu
func (s *MemoryRateLimitStore) evict(now time.Time) {
	for k, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, k)
		}
	}
}
