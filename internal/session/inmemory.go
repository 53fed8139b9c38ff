package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryActivityStore keeps activity markers in process memory. Suitable
// for tests and single-instance deployments without Redis.
type InMemoryActivityStore struct {
	mu      sync.RWMutex
	entries map[string]inMemoryEntry
}

type inMemoryEntry struct {
	at      time.Time
	expires time.Time
}

func NewInMemoryActivityStore() *InMemoryActivityStore {
	return &InMemoryActivityStore{entries: make(map[string]inMemoryEntry)}
}

func (s *InMemoryActivityStore) LastActivity(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expires) {
		return time.Time{}, false, nil
	}
	return e.at, true, nil
}

func (s *InMemoryActivityStore) Touch(_ context.Context, key string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = inMemoryEntry{at: at, expires: at.Add(ttl)}
	return nil
}

func (s *InMemoryActivityStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
