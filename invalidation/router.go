// Package invalidation maps content mutations to the cache entries they make stale
// and evicts them using the strongest bulk eviction the cache backend offers.
package invalidation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/cppla/sitecore/cache"
	"github.com/cppla/sitecore/cachekeys"
)

var (
	invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitecore_invalidations_total",
		Help: "Content invalidations by entity type and strategy.",
	}, []string{"entity", "strategy"})
	invalidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitecore_invalidation_failures_total",
		Help: "Invalidations that could not reach the cache backend.",
	}, []string{"entity"})
)

// Mode selects whether Invalidate blocks the caller.
type Mode string

const (
	// ModeSync evicts before Invalidate returns.
	ModeSync Mode = "sync"
	// ModeAsync evicts in the background, accepting a brief stale-read window.
	ModeAsync Mode = "async"
)

// Plan is the set of evictions for one mutation.
type Plan struct {
	Keys     []string
	Patterns []string
	Tags     []string
	// DependentPatterns come from DependOn; tags cannot express them.
	DependentPatterns []string
}

// Router computes and executes invalidation plans.
type Router struct {
	store    cache.Store
	strategy cache.Capability
	mode     Mode
	timeout  time.Duration
	log      *zap.Logger

	mu         sync.RWMutex
	dependents map[string][]string

	inflight sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

func WithMode(m Mode) Option {
	return func(r *Router) {
		if m == ModeAsync {
			r.mode = ModeAsync
		}
	}
}

// WithTimeout bounds a background eviction in async mode.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRouter picks the eviction strategy once from the store's capabilities.
func NewRouter(store cache.Store, log *zap.Logger, opts ...Option) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		store:      store,
		strategy:   cache.Best(store),
		mode:       ModeSync,
		timeout:    5 * time.Second,
		log:        log,
		dependents: make(map[string][]string),
	}
	for _, o := range opts {
		o(r)
	}
	r.log.Info("cache invalidation router ready", zap.String("strategy", r.strategy.String()), zap.String("mode", string(r.mode)))
	return r
}

// Strategy reports the bulk eviction strategy in use.
func (r *Router) Strategy() cache.Capability { return r.strategy }

// DependOn declares that key (exact, or a pattern ending in '*') embeds data of
// every listed type and must be evicted whenever one of them mutates.
func (r *Router) DependOn(key string, types ...cachekeys.EntityType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		existing := r.dependents[t.Name]
		dup := false
		for _, k := range existing {
			if k == key {
				dup = true
				break
			}
		}
		if !dup {
			r.dependents[t.Name] = append(existing, key)
		}
	}
}

// PlanFor lists what a mutation of (t, id, slugs) evicts. Lists and statistics
// of the type are always included; list membership is never inspected.
func (r *Router) PlanFor(t cachekeys.EntityType, id uint, slugs ...string) Plan {
	p := Plan{
		Keys:     []string{cachekeys.Statistics(t)},
		Patterns: []string{cachekeys.ByIDPattern(t, id)},
		Tags:     []string{cachekeys.TagEntity(t, id), cachekeys.TagLists(t), cachekeys.TagStatistics(t)},
	}
	seen := map[string]bool{}
	for _, s := range slugs {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		p.Patterns = append(p.Patterns, cachekeys.BySlugPattern(t, s), cachekeys.PublishedBySlugPattern(t, s))
		p.Tags = append(p.Tags, cachekeys.TagSlug(t, s))
	}
	for _, q := range t.Lists {
		p.Patterns = append(p.Patterns, cachekeys.ListPattern(t, q))
	}

	r.mu.RLock()
	for _, k := range r.dependents[t.Name] {
		if strings.HasSuffix(k, "*") {
			p.DependentPatterns = append(p.DependentPatterns, k)
		} else {
			p.Keys = append(p.Keys, k)
		}
	}
	r.mu.RUnlock()
	return p
}

// Invalidate evicts every entry that may be stale after a create, update or
// delete of (t, id). Pass both old and new slug when a slug changed. It never
// fails the caller: backend errors are logged and the entries expire by TTL.
func (r *Router) Invalidate(ctx context.Context, t cachekeys.EntityType, id uint, slugs ...string) {
	plan := r.PlanFor(t, id, slugs...)
	if r.mode == ModeAsync {
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
			defer cancel()
			r.run(bctx, t, id, plan)
		}()
		return
	}
	r.run(ctx, t, id, plan)
}

// Wait blocks until background evictions started in async mode have finished.
func (r *Router) Wait() { r.inflight.Wait() }

func (r *Router) run(ctx context.Context, t cachekeys.EntityType, id uint, p Plan) {
	invalidationsTotal.WithLabelValues(t.Name, r.strategy.String()).Inc()
	if err := r.execute(ctx, p); err != nil {
		invalidationFailures.WithLabelValues(t.Name).Inc()
		r.log.Warn("cache invalidation failed, entries will expire by ttl",
			zap.String("entity_type", t.Name),
			zap.String("entity_id", strconv.FormatUint(uint64(id), 10)),
			zap.String("op", "invalidate"),
			zap.String("strategy", r.strategy.String()),
			zap.Error(err))
	}
}

func (r *Router) execute(ctx context.Context, p Plan) error {
	var errs []error
	// Bump first: a read-through load that overlaps this eviction must not
	// write its value back afterwards.
	if v, ok := r.store.(cache.Versioner); ok {
		if err := v.Bump(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	switch r.strategy {
	case cache.SupportsPatternDelete:
		pd := r.store.(cache.PatternDeleter)
		for _, pat := range append(p.Patterns, p.DependentPatterns...) {
			if _, err := pd.DeleteByPattern(ctx, pat); err != nil {
				errs = append(errs, err)
			}
		}
		if err := r.store.Delete(ctx, p.Keys...); err != nil {
			errs = append(errs, err)
		}

	case cache.SupportsTagging:
		if err := r.store.(cache.Tagger).FlushTags(ctx, p.Tags...); err != nil {
			errs = append(errs, err)
		}
		if err := r.store.Delete(ctx, p.Keys...); err != nil {
			errs = append(errs, err)
		}
		if len(p.DependentPatterns) > 0 {
			if f, ok := r.store.(cache.Flusher); ok {
				errs = append(errs, f.Flush(ctx))
			}
		}

	case cache.SupportsFlush:
		errs = append(errs, r.store.(cache.Flusher).Flush(ctx))

	default:
		if err := r.store.Delete(ctx, p.Keys...); err != nil {
			errs = append(errs, err)
		}
		r.log.Debug("cache backend has no bulk eviction, parameterised entries expire by ttl",
			zap.Int("patterns", len(p.Patterns)))
	}
	return errors.Join(errs...)
}
