package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore — потокобезопасная реализация в памяти для тестов и
// однопроцессного запуска без Redis.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) get(key string) (string, bool) {
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return "", false
	}
	return e.value, true
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.get(key); ok {
		return existing, false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: exp}
	return value, true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	return v, ok, nil
}

func (s *MemoryStore) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	_, stored, err := s.PutIfAbsent(ctx, key, "1", ttl)
	return stored, err
}
