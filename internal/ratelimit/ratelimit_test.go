package ratelimit

import (
	"testing"
	"time"
)

// fakeClock advances manually so window expiry can be tested without sleeping.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDedupeCache(t *testing.T) {
	clock := newFakeClock()
	d := NewDedupeCache(60 * time.Second)
	d.now = clock.now

	if d.SeenRecently("m1") {
		t.Fatal("first lookup must return false")
	}
	if !d.SeenRecently("m1") {
		t.Fatal("immediate repeat must return true")
	}
	if d.SeenRecently("m2") {
		t.Fatal("distinct key must return false")
	}

	clock.advance(61 * time.Second)
	if d.SeenRecently("m1") {
		t.Fatal("after the window elapses the key must be accepted again")
	}
}

func TestDedupeCache_TruePathHasNoSideEffect(t *testing.T) {
	clock := newFakeClock()
	d := NewDedupeCache(60 * time.Second)
	d.now = clock.now

	d.SeenRecently("m1")
	clock.advance(40 * time.Second)
	d.SeenRecently("m1") // true; must not refresh the entry
	clock.advance(25 * time.Second)
	if d.SeenRecently("m1") {
		t.Fatal("entry is 65s old; repeated true lookups must not extend its life")
	}
}

func TestCooldownManager(t *testing.T) {
	clock := newFakeClock()
	c := NewCooldownManager(3 * time.Second)
	c.now = clock.now

	if c.InCooldown("s") {
		t.Fatal("first call must return false")
	}
	if !c.InCooldown("s") {
		t.Fatal("second immediate call must return true")
	}

	clock.advance(4 * time.Second)
	if c.InCooldown("s") {
		t.Fatal("past the window the key must be out of cooldown")
	}
}

func TestCooldownManager_TrueDoesNotAdvanceTimestamp(t *testing.T) {
	clock := newFakeClock()
	c := NewCooldownManager(10 * time.Second)
	c.now = clock.now

	c.InCooldown("s") // false, stamps t0
	clock.advance(8 * time.Second)
	if !c.InCooldown("s") {
		t.Fatal("still inside window")
	}
	clock.advance(3 * time.Second) // 11s after t0, 3s after the true hit
	if c.InCooldown("s") {
		t.Fatal("a true result must not refresh the timestamp")
	}
}

func TestFailureTracker(t *testing.T) {
	clock := newFakeClock()
	f := NewFailureTracker(3, 60*time.Second)
	f.now = clock.now

	f.RegisterFailure("s")
	f.RegisterFailure("s")
	if f.IsBlocked("s") {
		t.Fatal("below threshold must not block")
	}
	f.RegisterFailure("s")
	if !f.IsBlocked("s") {
		t.Fatal("three failures with max=3 must block")
	}

	f.RegisterSuccess("s")
	if f.IsBlocked("s") {
		t.Fatal("success must immediately unblock")
	}
}

func TestFailureTracker_CooldownExpiryKeepsCounter(t *testing.T) {
	clock := newFakeClock()
	f := NewFailureTracker(3, 60*time.Second)
	f.now = clock.now

	for i := 0; i < 3; i++ {
		f.RegisterFailure("s")
	}
	clock.advance(61 * time.Second)
	if f.IsBlocked("s") {
		t.Fatal("block must lapse after the cooldown")
	}

	// Counter was not reset by expiry: one more failure re-opens immediately.
	f.RegisterFailure("s")
	if !f.IsBlocked("s") {
		t.Fatal("a single failure after expiry must re-open the breaker")
	}
}

func TestFailureTracker_IndependentKeys(t *testing.T) {
	f := NewFailureTracker(1, time.Minute)
	f.RegisterFailure("a")
	if f.IsBlocked("b") {
		t.Fatal("keys must be tracked independently")
	}
}
