package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitecore_counter_events_total",
		Help: "Counter events accepted into the pending store.",
	}, []string{"kind"})
	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitecore_counter_flushes_total",
		Help: "Durable increments issued by the batcher.",
	}, []string{"kind"})
	flushedAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitecore_counter_flushed_amount_total",
		Help: "Sum of pending counts written to durable storage.",
	}, []string{"kind"})
	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecore_counter_sweep_failures_total",
		Help: "Pending counters the sweep could not flush.",
	})
)

// Repository is the durable side of a countable entity.
type Repository interface {
	// Exists reports whether the entity is present and not deleted.
	Exists(ctx context.Context, id uint) (bool, error)
	// IncrementCounter atomically adds amount to the kind's column.
	// It returns ErrNotFound when no live row matched.
	IncrementCounter(ctx context.Context, id uint, kind Kind, amount int64) error
}

// Batcher turns per-request events into threshold-sized durable increments.
type Batcher struct {
	store     PendingStore
	repo      Repository
	policies  map[Kind]Policy
	ttl       time.Duration
	lookahead time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithPolicies overrides thresholds; kinds missing from p keep their default.
func WithPolicies(p map[Kind]Policy) Option {
	return func(b *Batcher) {
		for k, v := range p {
			if v.Threshold > 0 {
				b.policies[k] = v
			}
		}
	}
}

// WithTTL sets the pending counter lifetime.
func WithTTL(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.ttl = d
		}
	}
}

// WithLookahead sets how close to expiry a counter must be for the sweep to flush it.
func WithLookahead(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.lookahead = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Batcher) { b.now = now }
}

// NewBatcher wires a pending store to a durable repository.
func NewBatcher(store PendingStore, repo Repository, log *zap.Logger, opts ...Option) *Batcher {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Batcher{
		store:     store,
		repo:      repo,
		policies:  make(map[Kind]Policy, len(DefaultPolicies)),
		ttl:       DefaultTTL,
		lookahead: DefaultSweepInterval,
		now:       time.Now,
		log:       log,
	}
	for k, v := range DefaultPolicies {
		b.policies[k] = v
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Threshold returns the flush threshold of kind, or 0 when unknown.
func (b *Batcher) Threshold(kind Kind) int64 {
	return b.policies[kind].Threshold
}

// RecordEvent counts one event. When the pending value reaches a multiple of
// the kind's threshold it is flushed before returning. Errors are logged and
// returned for callers that care; request handlers ignore them.
func (b *Batcher) RecordEvent(ctx context.Context, id uint, kind Kind) error {
	pol, ok := b.policies[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	log := b.log.With(zap.Uint("entity_id", id), zap.String("kind", string(kind)), zap.String("op", "record_event"))

	exists, err := b.repo.Exists(ctx, id)
	if err != nil {
		log.Warn("existence check failed", zap.Error(err))
		return err
	}
	if !exists {
		log.Debug("event for missing entity ignored")
		return ErrNotFound
	}

	k := Key{EntityID: id, Kind: kind}
	n, err := b.store.Incr(ctx, k, b.ttl)
	if err != nil {
		log.Warn("pending increment dropped", zap.Error(err))
		return err
	}
	eventsTotal.WithLabelValues(string(kind)).Inc()

	if n%pol.Threshold != 0 {
		return nil
	}
	_, err = b.flush(ctx, k)
	return err
}

// Flush writes the pending count of (id, kind) to durable storage. Concurrent
// flushes are safe: only one of them observes a non-zero value.
func (b *Batcher) Flush(ctx context.Context, id uint, kind Kind) error {
	if _, ok := b.policies[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	_, err := b.flush(ctx, Key{EntityID: id, Kind: kind})
	return err
}

func (b *Batcher) flush(ctx context.Context, k Key) (int64, error) {
	log := b.log.With(zap.Uint("entity_id", k.EntityID), zap.String("kind", string(k.Kind)), zap.String("op", "flush"))

	n, err := b.store.Take(ctx, k, b.ttl)
	if err != nil {
		log.Warn("pending take failed", zap.Error(err))
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := b.repo.IncrementCounter(ctx, k.EntityID, k.Kind, n); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Info("entity gone, pending count dropped", zap.Int64("amount", n))
		} else {
			log.Error("durable increment failed, pending count dropped", zap.Int64("amount", n), zap.Error(err))
		}
		return 0, err
	}
	flushesTotal.WithLabelValues(string(k.Kind)).Inc()
	flushedAmount.WithLabelValues(string(k.Kind)).Add(float64(n))
	log.Debug("flushed", zap.Int64("amount", n))
	return n, nil
}

// Discard drops every pending counter of a deleted entity without flushing.
func (b *Batcher) Discard(ctx context.Context, id uint) error {
	if err := b.store.Discard(ctx, id); err != nil {
		b.log.Warn("discard pending counters failed", zap.Uint("entity_id", id), zap.String("op", "discard"), zap.Error(err))
		return err
	}
	return nil
}

// SweepResult summarises one sweep pass.
type SweepResult struct {
	Scanned int   `json:"scanned"`
	Flushed int   `json:"flushed"`
	Amount  int64 `json:"amount"`
	Failed  int   `json:"failed"`
}

// Sweep flushes every non-zero counter that expires within the lookahead window.
// A failure on one counter is logged and the pass continues.
func (b *Batcher) Sweep(ctx context.Context) (SweepResult, error) {
	return b.sweep(ctx, false)
}

// Drain flushes every non-zero counter regardless of expiry, used on shutdown.
func (b *Batcher) Drain(ctx context.Context) (SweepResult, error) {
	return b.sweep(ctx, true)
}

func (b *Batcher) sweep(ctx context.Context, all bool) (SweepResult, error) {
	return b.sweepWithin(ctx, b.lookahead, all)
}

func (b *Batcher) sweepWithin(ctx context.Context, window time.Duration, all bool) (SweepResult, error) {
	var res SweepResult
	pending, err := b.store.Pending(ctx)
	if err != nil {
		b.log.Warn("sweep listing failed", zap.String("op", "sweep"), zap.Error(err))
		return res, err
	}
	deadline := b.now().Add(window)
	for _, p := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Scanned++
		if p.Count == 0 || (!all && p.ExpiresAt.After(deadline)) {
			continue
		}
		if _, ok := b.policies[p.Kind]; !ok {
			continue
		}
		n, err := b.flush(ctx, p.Key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				res.Failed++
				sweepFailures.Inc()
			}
			continue
		}
		if n > 0 {
			res.Flushed++
			res.Amount += n
		}
	}
	return res, nil
}

// SafeSweepInterval shortens interval so a counter written just after one sweep
// still has SweepMargin to live when the next one runs.
func (b *Batcher) SafeSweepInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	limit := b.ttl - SweepMargin
	if limit <= 0 {
		limit = b.ttl / 2
	}
	if interval > limit {
		return limit
	}
	return interval
}

// RunSweeper sweeps on every tick until ctx is cancelled, then drains once
// with a fresh deadline so no sub-threshold count is left behind. Each tick
// flushes whatever would expire before the following tick.
func (b *Batcher) RunSweeper(ctx context.Context, interval time.Duration) {
	if safe := b.SafeSweepInterval(interval); safe != interval {
		if interval > 0 {
			b.log.Warn("sweep interval shortened to outrun pending counter ttl",
				zap.Duration("requested", interval), zap.Duration("interval", safe), zap.Duration("ttl", b.ttl))
		}
		interval = safe
	}
	window := b.lookahead
	if w := interval + SweepMargin; w > window {
		window = w
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			res, err := b.Drain(dctx)
			cancel()
			b.log.Info("sweeper stopped", zap.Int("flushed", res.Flushed), zap.Int64("amount", res.Amount), zap.Error(err))
			return
		case <-t.C:
			res, err := b.sweepWithin(ctx, window, false)
			if err != nil {
				continue
			}
			if res.Flushed > 0 || res.Failed > 0 {
				b.log.Info("sweep done", zap.Int("scanned", res.Scanned), zap.Int("flushed", res.Flushed),
					zap.Int64("amount", res.Amount), zap.Int("failed", res.Failed))
			}
		}
	}
}
