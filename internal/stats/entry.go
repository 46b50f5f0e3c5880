// Package stats serves dashboard charts derived from the aggregate
// statistics computed by the complaints API.
package stats

import (
	"sync"
	"time"
)

// Entry is a single cached value with an absolute expiry. Freshness is
// checked on every read against the caller's clock; nothing runs in the
// background, so an abandoned entry simply goes stale.
//
// Every Invalidate starts a new generation. A fetch records the generation
// it started under and hands it back to SetIf, which discards the value if
// the entry was invalidated in the meantime.
type Entry[T any] struct {
	mu        sync.Mutex
	value     T
	expiresAt time.Time
	set       bool
	gen       uint64
}

// Get returns the value if it is still fresh at now.
func (e *Entry[T]) Get(now time.Time) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set || !now.Before(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Generation returns the current generation.
func (e *Entry[T]) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// SetIf stores v only while the entry is still at generation gen. It
// reports whether the value was stored.
func (e *Entry[T]) SetIf(gen uint64, v T, now time.Time, ttl time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return false
	}
	e.value = v
	e.expiresAt = now.Add(ttl)
	e.set = true
	return true
}

// Invalidate drops the value and starts a new generation.
func (e *Entry[T]) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	var zero T
	e.value = zero
	e.set = false
	e.gen++
}
