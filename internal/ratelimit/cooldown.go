package ratelimit

import (
	"sync"
	"time"
)

// CooldownManager is a per-key minimum-interval gate. The relay runs two
// independent instances, one keyed by session and one by sender, so a
// busy session and a chatty individual are throttled separately.
type CooldownManager struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewCooldownManager(window time.Duration) *CooldownManager {
	return &CooldownManager{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// InCooldown reports whether key fired within the window. A true result
// leaves the stored timestamp untouched, so repeated hits during a
// cooldown do not extend it. A false result refreshes the timestamp.
func (c *CooldownManager) InCooldown(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.window {
		return true
	}
	c.last[key] = now
	return false
}
