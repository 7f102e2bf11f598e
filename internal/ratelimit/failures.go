package ratelimit

import (
	"sync"
	"time"
)

type failureState struct {
	fails        int
	blockedUntil time.Time
}

// FailureTracker is a consecutive-failure circuit breaker. Reaching the
// failure threshold blocks a key for the cooldown duration. A success
// clears everything. Cooldown expiry alone does NOT reset the counter:
// after the block lapses, a single further failure re-opens the breaker
// immediately. That asymmetry is deliberate and load-bearing.
type FailureTracker struct {
	maxFailures int
	cooldown    time.Duration

	mu     sync.Mutex
	states map[string]*failureState
	now    func() time.Time
}

func NewFailureTracker(maxFailures int, cooldown time.Duration) *FailureTracker {
	return &FailureTracker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		states:      make(map[string]*failureState),
		now:         time.Now,
	}
}

// RegisterFailure increments the consecutive-failure count for key and
// opens the breaker once the threshold is reached.
func (f *FailureTracker) RegisterFailure(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.states[key]
	if st == nil {
		st = &failureState{}
		f.states[key] = st
	}
	st.fails++
	if st.fails >= f.maxFailures {
		st.blockedUntil = f.now().Add(f.cooldown)
	}
}

// RegisterSuccess closes the breaker for key and zeroes its counter,
// regardless of any pending block.
func (f *FailureTracker) RegisterSuccess(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, key)
}

// IsBlocked reports whether key is currently inside a failure cooldown.
func (f *FailureTracker) IsBlocked(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.states[key]
	if st == nil || st.blockedUntil.IsZero() {
		return false
	}
	return f.now().Before(st.blockedUntil)
}
