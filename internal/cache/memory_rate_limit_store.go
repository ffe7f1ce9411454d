package cache

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/garage/internal/models"
)

type memoryCounter struct {
	count       int
	windowStart time.Time
	expiresAt   time.Time
}

// MemoryRateLimitStore keeps counters in process memory. State is lost on
// restart and not shared between instances.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	entries map[string]*memoryCounter
}

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{entries: make(map[string]*memoryCounter)}
}

func (s *MemoryRateLimitStore) Get(_ context.Context, key string) (*models.RateLimitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &models.RateLimitEntry{Key: key, Count: c.count, WindowStart: c.windowStart}, nil
}

func (s *MemoryRateLimitStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (*models.RateLimitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.entries[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &memoryCounter{windowStart: now, expiresAt: now.Add(window)}
		s.entries[key] = c
	}
	c.count++

	return &models.RateLimitEntry{Key: key, Count: c.count, WindowStart: c.windowStart}, nil
}

func (s *MemoryRateLimitStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryRateLimitStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, c := range s.entries {
		if !now.Before(c.expiresAt) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}
