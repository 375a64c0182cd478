package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingStore is the ephemeral accumulator. Every mutation is atomic in the
// store itself; callers never lock.
type PendingStore interface {
	// Incr adds one to the counter and refreshes its TTL, returning the new value.
	Incr(ctx context.Context, k Key, ttl time.Duration) (int64, error)
	// Take returns the current value and resets it to zero in one step.
	Take(ctx context.Context, k Key, ttl time.Duration) (int64, error)
	// Discard drops every counter of an entity without flushing.
	Discard(ctx context.Context, entityID uint) error
	// Pending lists the counters currently held.
	Pending(ctx context.Context) ([]PendingCounter, error)
}

// RedisPendingStore keeps counters as Redis integers plus an index set used by the sweep.
type RedisPendingStore struct {
	client    *redis.Client
	namespace string
	timeout   time.Duration
}

// NewRedisPendingStore stores keys as "counter:{namespace}:{id}:{kind}".
func NewRedisPendingStore(client *redis.Client, namespace string) *RedisPendingStore {
	return &RedisPendingStore{client: client, namespace: "counter:" + namespace + ":", timeout: 2 * time.Second}
}

func (s *RedisPendingStore) key(k Key) string { return s.namespace + k.String() }
func (s *RedisPendingStore) index() string    { return s.namespace + "index" }

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (s *RedisPendingStore) Incr(ctx context.Context, k Key, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, s.key(k))
		p.PExpire(ctx, s.key(k), ttl)
		p.SAdd(ctx, s.index(), k.String())
		return nil
	})
	if err != nil {
		return 0, storeErr(err)
	}
	return incr.Val(), nil
}

// KEYS[1] counter, KEYS[2] index; ARGV[1] ttl ms, ARGV[2] index member.
var takeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  redis.call('SREM', KEYS[2], ARGV[2])
  return 0
end
local v = tonumber(raw)
if v > 0 then
  redis.call('SET', KEYS[1], 0, 'PX', ARGV[1])
end
return v
`)

func (s *RedisPendingStore) Take(ctx context.Context, k Key, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := takeScript.Run(ctx, s.client, []string{s.key(k), s.index()}, ttl.Milliseconds(), k.String()).Int64()
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

func (s *RedisPendingStore) Discard(ctx context.Context, entityID uint) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, kind := range Kinds {
			k := Key{EntityID: entityID, Kind: kind}
			p.Del(ctx, s.key(k))
			p.SRem(ctx, s.index(), k.String())
		}
		return nil
	})
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *RedisPendingStore) Pending(ctx context.Context) ([]PendingCounter, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*s.timeout)
	defer cancel()
	members, err := s.client.SMembers(ctx, s.index()).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	type row struct {
		key  Key
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	}
	rows := make([]row, 0, len(members))
	pipe := s.client.Pipeline()
	for _, m := range members {
		k, ok := ParseKey(m)
		if !ok {
			pipe.SRem(ctx, s.index(), m)
			continue
		}
		rows = append(rows, row{key: k, get: pipe.Get(ctx, s.key(k)), pttl: pipe.PTTL(ctx, s.key(k))})
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeErr(err)
	}

	now := time.Now()
	out := make([]PendingCounter, 0, len(rows))
	var stale []any
	for _, r := range rows {
		n, err := r.get.Int64()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, r.key.String())
			continue
		}
		if err != nil {
			continue
		}
		out = append(out, PendingCounter{Key: r.key, Count: n, ExpiresAt: now.Add(r.pttl.Val())})
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.index(), stale...).Err()
	}
	return out, nil
}

type memCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryPendingStore is a single-process PendingStore. Expired counters keep
// their value until the next sweep flushes them.
type MemoryPendingStore struct {
	mu       sync.Mutex
	counters map[Key]*memCounter
	now      func() time.Time
}

// NewMemoryPendingStore creates a store reading time from now (time.Now when nil).
func NewMemoryPendingStore(now func() time.Time) *MemoryPendingStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryPendingStore{counters: make(map[Key]*memCounter), now: now}
}

func (s *MemoryPendingStore) Incr(_ context.Context, k Key, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[k]
	if !ok {
		c = &memCounter{}
		s.counters[k] = c
	}
	c.count++
	c.expiresAt = s.now().Add(ttl)
	return c.count, nil
}

func (s *MemoryPendingStore) Take(_ context.Context, k Key, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[k]
	if !ok {
		return 0, nil
	}
	n := c.count
	c.count = 0
	c.expiresAt = s.now().Add(ttl)
	return n, nil
}

func (s *MemoryPendingStore) Discard(_ context.Context, entityID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range Kinds {
		delete(s.counters, Key{EntityID: entityID, Kind: kind})
	}
	return nil
}

func (s *MemoryPendingStore) Pending(context.Context) ([]PendingCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]PendingCounter, 0, len(s.counters))
	for k, c := range s.counters {
		if c.count == 0 && now.After(c.expiresAt) {
			delete(s.counters, k)
			continue
		}
		out = append(out, PendingCounter{Key: k, Count: c.count, ExpiresAt: c.expiresAt})
	}
	return out, nil
}
