package main

import (
	"fmt"
	"strings"
)

// NumSubcircuits is the number of sub-circuits of a split circuit that have
// their own pair of indicators on the demo board.
const NumSubcircuits = 3

// Subcircuit identifies one of the parallel paths of a split circuit.  Valid
// values are 0 through NumSubcircuits-1; anything else is silently ignored by
// the demo.
type Subcircuit uint16

// Valid reports whether the index addresses one of the demo's indicators.
func (s Subcircuit) Valid() bool {
	return s < NumSubcircuits
}

// Direction selects which of the two indicator sets a cell is shown on.  The
// zero value is not a valid direction.
type Direction uint8

const (
	// DirectionOut is cell flow away from the client (forward).
	DirectionOut Direction = iota + 1
	// DirectionIn is cell flow towards the client (backward).
	DirectionIn
)

// Valid reports whether d is DirectionOut or DirectionIn.
func (d Direction) Valid() bool {
	return d == DirectionOut || d == DirectionIn
}

func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "forward"
	case DirectionIn:
		return "backward"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// index maps a valid direction to 0 (out) or 1 (in) for table lookups.
func (d Direction) index() int {
	return int(d) - 1
}

// ParseDirection accepts the usual spellings of both directions, ignoring
// case.  Cells travelling out are also called forward, cells travelling in
// are backward.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "out", "outbound", "forward", "fwd":
		return DirectionOut, nil
	case "in", "inbound", "backward", "bwd":
		return DirectionIn, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// directions lists both valid directions in table order.
var directions = [...]Direction{DirectionOut, DirectionIn}

// State is the lifecycle state of a Demo.
type State int

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
