package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultTTL applies when a caller passes ttl <= 0.
	DefaultTTL = time.Hour

	defaultPrefix = "cache:"
	scanBatch     = 1000
)

// RedisStore keeps entries in Redis under a fixed key prefix. The write
// generation lives outside the prefix so Flush never resets it.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	genKey  string
	timeout time.Duration
	log     *zap.Logger
}

// NewRedisStore wraps an existing client. An empty prefix defaults to "cache:".
func NewRedisStore(client *redis.Client, prefix string, log *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		genKey:  "generation:" + prefix,
		timeout: 2 * time.Second,
		log:     log,
	}
}

func (s *RedisStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteByPattern walks the keyspace with SCAN and deletes matches in pipelined batches.
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*s.timeout)
	defer cancel()
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+pattern, scanBatch).Result()
		if err != nil {
			return deleted, unavailable(err)
		}
		if len(keys) > 0 {
			pipe := s.client.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return deleted, unavailable(err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.log.Debug("cache pattern delete", zap.String("pattern", pattern), zap.Int("deleted", deleted))
	return deleted, nil
}

// Flush removes every key under the store prefix; other tenants of the Redis DB are untouched.
func (s *RedisStore) Flush(ctx context.Context) error {
	_, err := s.DeleteByPattern(ctx, "*")
	return err
}

func (s *RedisStore) Generation(ctx context.Context) (uint64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	n, err := s.client.Get(ctx, s.genKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *RedisStore) Bump(ctx context.Context) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.client.Incr(ctx, s.genKey).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
