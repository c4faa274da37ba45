package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Demo lights an indicator for every sampled cell of a split circuit and
// turns it off again after the blink duration.  It owns one indicator set per
// direction; each set has a sample counter, an indicator and a one-shot timer
// per sub-circuit.
//
// All methods are safe for concurrent use.  A single mutex serialises cell
// registration and timer expiry, which gives the same ordering as a single
// event loop would.
type Demo struct {
	cfg     Config
	backend IndicatorBackend
	clock   Clock
	log     *zap.Logger

	mu      sync.Mutex
	state   State
	sampler *sampler
	timers  [2][NumSubcircuits]*oneShot
	lit     [2][NumSubcircuits]bool
}

// Option customises a Demo.
type Option func(*Demo)

// WithLogger sets the logger.  The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Demo) { d.log = logger }
}

// WithClock replaces the clock used for blink timers.
func WithClock(clock Clock) Option {
	return func(d *Demo) { d.clock = clock }
}

// NewDemo creates an uninitialized demo.  cfg should have passed Validate;
// a zero cell interval is treated as 1.
func NewDemo(cfg Config, backend IndicatorBackend, opts ...Option) *Demo {
	d := &Demo{
		cfg:     cfg,
		backend: backend,
		clock:   realClock{},
		log:     zap.NewNop(),
		sampler: newSampler(cfg.CellInterval),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.Named("demo")
	return d
}

// State returns the lifecycle state.
func (d *Demo) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Init acquires the indicators and creates the blink timers.  When the demo
// is disabled by configuration, Init logs that fact and succeeds without
// doing anything else; the demo then ignores all cells.  If the backend
// cannot be opened the error is returned and the demo stays uninitialized.
// Calling Init on a ready demo does nothing.
func (d *Demo) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateReady {
		return nil
	}
	if d.cfg.DisableDemo {
		d.log.Warn("demo code has been disabled via the 'disable_demo' option")
		return nil
	}
	d.log.Info("initializing demo", zap.String("backend", d.backend.Name()))

	if err := d.backend.Open(); err != nil {
		d.log.Error("demo initialization failed", zap.Error(err))
		if !errors.Is(err, ErrResourceAcquisition) {
			err = fmt.Errorf("%w: %w", ErrResourceAcquisition, err)
		}
		return multierr.Append(err, d.backend.Close())
	}
	for _, dir := range directions {
		for sc := Subcircuit(0); sc < NumSubcircuits; sc++ {
			dir, sc := dir, sc
			d.timers[dir.index()][sc] = newOneShot(d.clock, &d.mu, func() { d.deactivate(dir, sc) })
		}
	}
	d.sampler.reset()
	d.lit = [2][NumSubcircuits]bool{}
	d.state = StateReady
	d.log.Info("demo ready",
		zap.Uint32("cell_interval", d.sampler.interval),
		zap.Stringer("blink_duration", d.cfg.BlinkDuration),
	)
	return nil
}

// Shutdown stops all timers and then releases the indicators.  It may be
// called in any state, any number of times; only what was allocated is
// released.
func (d *Demo) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateReady {
		d.state = StateUninitialized
		return nil
	}
	for i := range d.timers {
		for sc, t := range d.timers[i] {
			if t != nil {
				t.stop()
			}
			d.timers[i][sc] = nil
		}
	}
	err := d.backend.Close()
	d.lit = [2][NumSubcircuits]bool{}
	d.state = StateUninitialized
	if err != nil {
		d.log.Error("releasing indicators", zap.Error(err))
		return err
	}
	d.log.Info("demo shut down")
	return nil
}

// RegisterCell is called once for every relay cell seen on a sub-circuit.
// Every cell-interval-th cell of a (direction, sub-circuit) pair switches the
// matching indicator on and schedules it to go off after the blink duration.
// Cells are ignored when the demo is not ready or the pair is invalid.
// notable marks cells of a split circuit and only affects logging.
func (d *Demo) RegisterCell(sc Subcircuit, dir Direction, notable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateReady || !sc.Valid() || !dir.Valid() {
		return
	}
	if !d.sampler.observe(dir, sc) {
		if ce := d.log.Check(zap.DebugLevel, "cell not sampled"); ce != nil {
			ce.Write(zap.Uint16("subcircuit", uint16(sc)), zap.Stringer("direction", dir))
		}
		return
	}
	d.activate(dir, sc, notable)
}

// Blink switches an indicator on and schedules it off after hold, without
// consulting the sample counter.  A zero hold uses the blink duration.  It
// has the same preconditions as RegisterCell.
func (d *Demo) Blink(sc Subcircuit, dir Direction, hold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateReady || !sc.Valid() || !dir.Valid() {
		return
	}
	if hold <= 0 {
		hold = d.cfg.BlinkDuration.Std()
	}
	d.set(dir, sc, true, false)
	d.timers[dir.index()][sc].arm(hold)
}

// RegisterSetup logs a milestone of multipath circuit setup, such as a
// SET_COOKIE or JOIN cell being sent or received.
func (d *Demo) RegisterSetup(format string, args ...any) {
	d.notice("setup", format, args...)
}

// RegisterInstruction logs a split instruction being sent or received.
func (d *Demo) RegisterInstruction(format string, args ...any) {
	d.notice("instruction", format, args...)
}

func (d *Demo) notice(kind, format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateReady {
		return
	}
	d.log.Info(fmt.Sprintf(format, args...), zap.String("kind", kind))
}

// activate must be called with d.mu held.
func (d *Demo) activate(dir Direction, sc Subcircuit, notable bool) {
	d.set(dir, sc, true, notable)
	d.timers[dir.index()][sc].arm(d.cfg.BlinkDuration.Std())
}

// deactivate runs as the timer callback, with d.mu held.
func (d *Demo) deactivate(dir Direction, sc Subcircuit) {
	if d.state != StateReady {
		return
	}
	d.set(dir, sc, false, false)
}

func (d *Demo) set(dir Direction, sc Subcircuit, on, notable bool) {
	if err := d.backend.Set(dir, sc, on, notable); err != nil {
		d.log.Error("indicator write failed",
			zap.Uint16("subcircuit", uint16(sc)),
			zap.Stringer("direction", dir),
			zap.Bool("on", on),
			zap.Error(err),
		)
		return
	}
	d.lit[dir.index()][sc] = on
}

// Lit reports whether the indicator of a pair is currently on, as far as the
// demo knows.
func (d *Demo) Lit(sc Subcircuit, dir Direction) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !sc.Valid() || !dir.Valid() {
		return false
	}
	return d.lit[dir.index()][sc]
}
