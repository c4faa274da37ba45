package main

import (
	"sync"
	"time"
)

// Stopper cancels a scheduled function.  *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Clock schedules deferred callbacks.  The production clock is backed by
// time.AfterFunc; tests substitute a manually advanced clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// oneShot binds a callback to one indicator.  At most one expiry is pending
// at a time: arming again replaces the previous schedule.
//
// Expiries run on their own goroutine.  They take the owner's lock before
// calling fn, and an expiry that was superseded by a later arm or stop while
// waiting for the lock is dropped, so only the latest schedule ever fires.
// arm and stop must be called with the lock held.
type oneShot struct {
	clock Clock
	lock  sync.Locker
	fn    func()

	gen     uint64
	pending Stopper
}

func newOneShot(clock Clock, lock sync.Locker, fn func()) *oneShot {
	return &oneShot{clock: clock, lock: lock, fn: fn}
}

// arm schedules fn to run once after delay.
func (t *oneShot) arm(delay time.Duration) {
	t.cancel()
	gen := t.gen
	t.pending = t.clock.AfterFunc(delay, func() { t.expire(gen) })
}

// stop cancels the pending expiry, if any.
func (t *oneShot) stop() {
	t.cancel()
}

// armed reports whether an expiry is pending.
func (t *oneShot) armed() bool {
	return t.pending != nil
}

func (t *oneShot) cancel() {
	t.gen++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *oneShot) expire(gen uint64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if gen != t.gen || t.pending == nil {
		return
	}
	t.pending = nil
	t.fn()
}
