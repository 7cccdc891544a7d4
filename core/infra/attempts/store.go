package attempts

import (
	"context"
	"sync"
)

// Store tracks how many times a trigger has failed a publish attempt.
type Store interface {
	// Incr bumps the attempt count for a trigger key and returns the new value.
	Incr(ctx context.Context, key string) (int, error)
	// Clear drops the attempt count for a trigger key.
	Clear(ctx context.Context, key string) error
}

// MemoryStore keeps attempt counts in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int)}
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
	return nil
}
