// Package ratelimit holds the in-memory anti-abuse state for the relay:
// a time-windowed dedupe cache, per-key cooldown gates, and a
// consecutive-failure circuit breaker. Nothing here is persisted; all
// state resets on process restart. All types are safe for concurrent use.
package ratelimit

import (
	"sync"
	"time"
)

// DedupeCache is a time-windowed set membership test over message
// identifiers. Entries expire lazily at lookup time; there is no
// background sweeper.
type DedupeCache struct {
	window time.Duration

	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewDedupeCache(window time.Duration) *DedupeCache {
	return &DedupeCache{
		window:  window,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SeenRecently reports whether key was already accepted within the
// window. A false result records the key; a true result has no side
// effect. A given key therefore returns false at most once per window.
func (d *DedupeCache) SeenRecently(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.entries {
		if now.Sub(ts) > d.window {
			delete(d.entries, k)
		}
	}
	if _, ok := d.entries[key]; ok {
		return true
	}
	d.entries[key] = now
	return false
}
