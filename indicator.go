package main

// This file defines the pluggable indicator backends that turn a sampled cell
// into something visible.

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

var (
	// ErrResourceAcquisition is wrapped by every failure to obtain the GPIO
	// host or one of its lines.  It is fatal to Demo.Init.
	ErrResourceAcquisition = errors.New("indicator resource unavailable")
	// ErrDeviceWrite is wrapped by every failure to drive a line.  The demo
	// logs it and carries on.
	ErrDeviceWrite = errors.New("indicator write failed")
)

// IndicatorBackend switches the indicator of one (direction, sub-circuit)
// pair on or off.  Set must be idempotent: switching an indicator on twice
// leaves it on.  The notable flag marks cells that belong to a split circuit;
// backends may use it for extra diagnostics but never for control flow.
//
// Backends are driven by a single Demo, which serialises all calls.
type IndicatorBackend interface {
	Name() string
	Open() error
	Set(dir Direction, sc Subcircuit, on, notable bool) error
	Close() error
}

// NewBackend creates the backend named by cfg.Backend.  An empty name selects
// the log backend.
func NewBackend(cfg Config, logger *zap.Logger) (IndicatorBackend, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendGPIO:
		return NewHardwareBackend(cfg, logger), nil
	case BackendLog, "":
		return NewLogBackend(logger), nil
	case BackendNull:
		return NullBackend{}, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
}

// HardwareBackend drives one LED per (direction, sub-circuit) pair from the
// GPIO lines of a Raspberry Pi.
type HardwareBackend struct {
	lines     [2][NumSubcircuits]int
	activeLow bool
	// consumer only labels log lines.  Unlike gpiod, periph has no notion of
	// a line owner, so it is never passed to the hardware.
	consumer string
	host      gpioHost
	log       *zap.Logger

	pins [2][NumSubcircuits]gpio.PinIO
}

// NewHardwareBackend creates a backend for the lines in cfg.  No hardware is
// touched until Open.  cfg must have passed Validate.
func NewHardwareBackend(cfg Config, logger *zap.Logger) *HardwareBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HardwareBackend{
		activeLow: cfg.ActiveLow,
		consumer:  cfg.Consumer,
		host:      periphHost,
		log:       logger.Named("gpio"),
	}
	for _, d := range directions {
		copy(h.lines[d.index()][:], cfg.Lines.forDirection(d))
	}
	return h
}

// Name returns the backend name.
func (*HardwareBackend) Name() string { return BackendGPIO }

// Open initialises the GPIO host and claims every line as an output driven
// to the off level.  If any line cannot be claimed, the lines claimed so far
// are released again and an error wrapping ErrResourceAcquisition is
// returned.
func (h *HardwareBackend) Open() error {
	if err := h.host.init(); err != nil {
		return fmt.Errorf("%w: opening GPIO host: %w", ErrResourceAcquisition, err)
	}
	off := lineLevel(false, h.activeLow)
	for _, d := range directions {
		for sc, n := range h.lines[d.index()] {
			name := lineName(n)
			p := h.host.byName(name)
			if p == nil {
				err := fmt.Errorf("%w: %s line %s not found", ErrResourceAcquisition, d, name)
				return multierr.Append(err, h.release())
			}
			if err := p.Out(off); err != nil {
				err = fmt.Errorf("%w: requesting %s as output: %w", ErrResourceAcquisition, name, err)
				return multierr.Append(err, h.release())
			}
			h.pins[d.index()][sc] = p
		}
	}
	h.log.Info("GPIO lines acquired",
		zap.String("consumer", h.consumer),
		zap.Ints("forward", h.lines[DirectionOut.index()][:]),
		zap.Ints("backward", h.lines[DirectionIn.index()][:]),
		zap.Bool("active_low", h.activeLow),
	)
	return nil
}

// Set drives the line of the given pair.
func (h *HardwareBackend) Set(dir Direction, sc Subcircuit, on, notable bool) error {
	p := h.pins[dir.index()][sc]
	if p == nil {
		return fmt.Errorf("%w: %s line of sub-circuit %d not acquired", ErrDeviceWrite, dir, sc)
	}
	if err := p.Out(lineLevel(on, h.activeLow)); err != nil {
		return fmt.Errorf("%w: setting %s to %t: %w", ErrDeviceWrite, p.Name(), on, err)
	}
	return nil
}

// Close switches every claimed LED off and releases its line.  It is safe to
// call on a backend that was never opened or only partially opened.
func (h *HardwareBackend) Close() error {
	return h.release()
}

func (h *HardwareBackend) release() (err error) {
	off := lineLevel(false, h.activeLow)
	for i := range h.pins {
		for sc, p := range h.pins[i] {
			if p == nil {
				continue
			}
			err = multierr.Append(err, p.Out(off))
			err = multierr.Append(err, p.Halt())
			h.pins[i][sc] = nil
		}
	}
	return err
}

// LogBackend reports indicator changes as log lines.  It is used on machines
// without LEDs, such as the relays of a demo setup.
type LogBackend struct {
	log *zap.Logger
}

// NewLogBackend creates a log backend writing to logger.
func NewLogBackend(logger *zap.Logger) *LogBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogBackend{log: logger.Named("indicator")}
}

// Name returns the backend name.
func (*LogBackend) Name() string { return BackendLog }

// Open does nothing.
func (*LogBackend) Open() error { return nil }

// Set logs the new indicator state.  Cells of a split circuit additionally
// produce a line saying whether they are being merged (outbound) or split
// (inbound) at this point.
func (l *LogBackend) Set(dir Direction, sc Subcircuit, on, notable bool) error {
	led := fmt.Sprintf("LED%d", sc)
	if !on {
		l.log.Debug("indicator off", zap.String("led", led), zap.Stringer("direction", dir))
		return nil
	}
	l.log.Info("indicator on",
		zap.String("led", led),
		zap.Stringer("direction", dir),
		zap.Bool("split_circuit", notable),
	)
	if notable {
		verb := "Split"
		if dir == DirectionOut {
			verb = "Merge"
		}
		l.log.Info(fmt.Sprintf("%s %s relay cell on sub-circuit %d", verb, dir, sc))
	}
	return nil
}

// Close does nothing.
func (*LogBackend) Close() error { return nil }

// NullBackend discards every indicator change.
type NullBackend struct{}

// Name returns the backend name.
func (NullBackend) Name() string { return BackendNull }

// Open does nothing.
func (NullBackend) Open() error { return nil }

// Set does nothing.
func (NullBackend) Set(Direction, Subcircuit, bool, bool) error { return nil }

// Close does nothing.
func (NullBackend) Close() error { return nil }
