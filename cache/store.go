// Package cache is the durable cache layer. Backends implement Store and may
// additionally offer bulk eviction through the optional capability interfaces.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get when the key is absent or expired.
	ErrMiss = errors.New("cache: miss")
	// ErrUnavailable wraps backend failures (connection refused, timeouts).
	ErrUnavailable = errors.New("cache: backend unavailable")
)

// Store is the minimal contract every backend satisfies.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PatternDeleter evicts every key matching a glob pattern (only '*' is used).
type PatternDeleter interface {
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// Tagger stores values with tag membership and evicts by tag.
type Tagger interface {
	SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error
	FlushTags(ctx context.Context, tags ...string) error
}

// Flusher drops everything the store owns.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Versioner keeps a store-wide write generation. Invalidation bumps it before
// evicting, and Remember refuses to write back a value whose load overlapped a bump.
type Versioner interface {
	Generation(ctx context.Context) (uint64, error)
	Bump(ctx context.Context) error
}

// Capability names the best bulk eviction a store supports.
type Capability int

const (
	NoBulkDelete Capability = iota
	SupportsFlush
	SupportsTagging
	SupportsPatternDelete
)

func (c Capability) String() string {
	switch c {
	case SupportsPatternDelete:
		return "pattern"
	case SupportsTagging:
		return "tag"
	case SupportsFlush:
		return "flush"
	default:
		return "none"
	}
}

// Best reports the strongest bulk eviction capability of s.
func Best(s Store) Capability {
	if _, ok := s.(PatternDeleter); ok {
		return SupportsPatternDelete
	}
	if _, ok := s.(Tagger); ok {
		return SupportsTagging
	}
	if _, ok := s.(Flusher); ok {
		return SupportsFlush
	}
	return NoBulkDelete
}

// Put writes value, attaching tags when the store supports them.
func Put(ctx context.Context, s Store, key string, value []byte, ttl time.Duration, tags ...string) error {
	if tg, ok := s.(Tagger); ok && len(tags) > 0 {
		return tg.SetTagged(ctx, key, value, ttl, tags...)
	}
	return s.Set(ctx, key, value, ttl)
}
