package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecore_cache_hits_total",
		Help: "Read-through cache hits.",
	})
	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecore_cache_misses_total",
		Help: "Read-through cache misses.",
	})
	staleWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecore_cache_stale_writes_total",
		Help: "Loaded values not kept because an invalidation overlapped the load.",
	})
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitecore_cache_errors_total",
		Help: "Cache backend errors by operation.",
	}, []string{"op"})
)

var group singleflight.Group

// Loader computes a value on cache miss.
type Loader[T any] func(ctx context.Context) (T, error)

// Remember returns the cached value under key or computes, stores and returns it.
// Concurrent misses for the same key share one load. Backend failures never fail
// the read; the value is computed directly instead.
func Remember[T any](ctx context.Context, s Store, log *zap.Logger, key string, ttl time.Duration, tags []string, load Loader[T]) (T, error) {
	var zero T
	if log == nil {
		log = zap.NewNop()
	}

	b, err := s.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		if uerr := json.Unmarshal(b, &v); uerr == nil {
			hitsTotal.Inc()
			return v, nil
		}
		log.Warn("cache decode failed, reloading", zap.String("key", key))
	case errors.Is(err, ErrMiss):
	default:
		errorsTotal.WithLabelValues("get").Inc()
		log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	missesTotal.Inc()

	// Readers arriving after an invalidation get a flight of their own.
	gen, genErr := generation(ctx, s)
	flight := key + "@" + strconv.FormatUint(gen, 10)
	res, err, _ := group.Do(flight, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, merr := json.Marshal(v)
		if merr != nil || genErr != nil {
			return v, nil
		}
		writeBack(ctx, s, log, key, raw, ttl, tags, gen)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

func generation(ctx context.Context, s Store) (uint64, error) {
	v, ok := s.(Versioner)
	if !ok {
		return 0, nil
	}
	return v.Generation(ctx)
}

// generationMoved reports whether an invalidation ran since before. An unknown
// generation counts as moved.
func generationMoved(ctx context.Context, s Store, before uint64) bool {
	now, err := generation(ctx, s)
	return err != nil || now != before
}

// writeBack caches raw unless an invalidation overlapped the load. A bump seen
// only after the write may have evicted before it, so the entry is removed again.
func writeBack(ctx context.Context, s Store, log *zap.Logger, key string, raw []byte, ttl time.Duration, tags []string, before uint64) {
	if generationMoved(ctx, s, before) {
		staleWritesTotal.Inc()
		return
	}
	if err := Put(ctx, s, key, raw, ttl, tags...); err != nil {
		errorsTotal.WithLabelValues("set").Inc()
		log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	if generationMoved(ctx, s, before) {
		staleWritesTotal.Inc()
		if err := s.Delete(ctx, key); err != nil {
			log.Warn("cache delete of overlapped write failed", zap.String("key", key), zap.Error(err))
		}
	}
}
