// Package counter batches high-frequency view and download events in an
// ephemeral store and flushes them to durable storage once a per-kind
// threshold is reached, or from a periodic sweep before the pending value expires.
package counter

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound means the entity does not exist or was deleted.
	ErrNotFound = errors.New("counter: entity not found")
	// ErrStoreUnavailable wraps ephemeral store failures.
	ErrStoreUnavailable = errors.New("counter: pending store unavailable")
	// ErrUnknownKind is returned for a kind without a policy.
	ErrUnknownKind = errors.New("counter: unknown counter kind")
)

// Kind is a counter dimension of a countable entity.
type Kind string

const (
	Views     Kind = "views"
	Downloads Kind = "downloads"
)

// Kinds lists every counter kind in a stable order.
var Kinds = []Kind{Views, Downloads}

// Policy holds the flush threshold of one kind.
type Policy struct {
	Threshold int64
}

// DefaultPolicies is the threshold table consulted by RecordEvent. Downloads
// are rarer and weigh more per event, so they flush sooner.
var DefaultPolicies = map[Kind]Policy{
	Views:     {Threshold: 5},
	Downloads: {Threshold: 3},
}

const (
	// DefaultTTL is the lifetime of a pending counter after its last event.
	DefaultTTL = 5 * time.Minute
	// DefaultSweepInterval is how often the sweeper looks for expiring counters.
	DefaultSweepInterval = 4 * time.Minute
	// SweepMargin is the least lifetime a pending counter has left when the
	// sweep after its last event runs.
	SweepMargin = time.Minute
)

// Key identifies one pending counter.
type Key struct {
	EntityID uint
	Kind     Kind
}

func (k Key) String() string {
	return strconv.FormatUint(uint64(k.EntityID), 10) + ":" + string(k.Kind)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, bool) {
	id, kind, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return Key{}, false
	}
	return Key{EntityID: uint(n), Kind: Kind(kind)}, true
}

// PendingCounter is a not-yet-durable accumulation for one key.
type PendingCounter struct {
	Key
	Count     int64
	ExpiresAt time.Time
}
