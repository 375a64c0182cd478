package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a per-instance LRU with per-entry TTL and tag sets. It cannot
// match key patterns, so invalidation falls back to tags or Flush.
type MemoryStore struct {
	lru    *expirable.LRU[string, memEntry]
	maxTTL time.Duration
	now    func() time.Time

	mu   sync.Mutex
	tags map[string]map[string]struct{}

	generation atomic.Uint64
}

// NewMemoryStore creates a store holding at most size entries; maxTTL caps every entry.
func NewMemoryStore(size int, maxTTL time.Duration) *MemoryStore {
	if size <= 0 {
		size = 10000
	}
	if maxTTL <= 0 {
		maxTTL = DefaultTTL
	}
	return &MemoryStore{
		lru:    expirable.NewLRU[string, memEntry](size, nil, maxTTL),
		maxTTL: maxTTL,
		now:    time.Now,
		tags:   make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if s.now().After(e.expiresAt) {
		s.lru.Remove(key)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	s.lru.Add(key, memEntry{value: value, expiresAt: s.now().Add(ttl)})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

func (s *MemoryStore) SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tags {
		members, ok := s.tags[t]
		if !ok {
			members = make(map[string]struct{})
			s.tags[t] = members
		}
		members[key] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) FlushTags(_ context.Context, tags ...string) error {
	s.mu.Lock()
	var keys []string
	for _, t := range tags {
		for k := range s.tags[t] {
			keys = append(keys, k)
		}
		delete(s.tags, t)
	}
	s.mu.Unlock()
	// evicted keys may still sit in other tag sets; removing them again later is a no-op
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

func (s *MemoryStore) Flush(context.Context) error {
	s.lru.Purge()
	s.mu.Lock()
	s.tags = make(map[string]map[string]struct{})
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Generation(context.Context) (uint64, error) {
	return s.generation.Load(), nil
}

func (s *MemoryStore) Bump(context.Context) error {
	s.generation.Add(1)
	return nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
