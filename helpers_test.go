package main

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeAR(t testing.TB) (*assert.Assertions, *require.Assertions) {
	return assert.New(t), require.New(t)
}

// fakeClock is a Clock that only moves when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs every callback that became due,
// in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Pending counts scheduled callbacks that have neither fired nor been
// stopped.
func (c *fakeClock) Pending() (n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type setCall struct {
	dir     Direction
	sc      Subcircuit
	on      bool
	notable bool
}

// recordingBackend remembers every call made to it.
type recordingBackend struct {
	openErr  error
	setErr   error
	closeErr error

	opened int
	closed int
	calls  []setCall
	state  [2][NumSubcircuits]bool
}

func (*recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) Open() error {
	b.opened++
	return b.openErr
}

func (b *recordingBackend) Set(dir Direction, sc Subcircuit, on, notable bool) error {
	b.calls = append(b.calls, setCall{dir, sc, on, notable})
	if b.setErr != nil {
		return b.setErr
	}
	b.state[dir.index()][sc] = on
	return nil
}

func (b *recordingBackend) Close() error {
	b.closed++
	return b.closeErr
}

func (b *recordingBackend) onCalls() (n int) {
	for _, c := range b.calls {
		if c.on {
			n++
		}
	}
	return n
}

// testConfig returns a valid configuration using the null backend.
func testConfig(interval uint32) Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendNull
	cfg.CellInterval = interval
	cfg.BlinkDuration = Duration(100 * time.Microsecond)
	return cfg
}

func newTestDemo(t testing.TB, interval uint32) (*Demo, *recordingBackend, *fakeClock) {
	t.Helper()
	backend := &recordingBackend{}
	clock := &fakeClock{}
	d := NewDemo(testConfig(interval), backend, WithClock(clock))
	require.NoError(t, d.Init())
	return d, backend, clock
}
