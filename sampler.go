package main

// sampler decides which cells light an indicator.  Each (direction,
// sub-circuit) pair has its own counter; every interval-th cell of a pair is
// selected.  The counter is incremented before it is checked, so the first
// selected cell is the interval-th one, and a counter is always in
// [0, interval).
type sampler struct {
	interval uint32
	count    [2][NumSubcircuits]uint32
}

func newSampler(interval uint32) *sampler {
	if interval == 0 {
		interval = 1
	}
	return &sampler{interval: interval}
}

// observe counts one cell and reports whether it is selected.  Invalid pairs
// are never selected and leave every counter untouched.
func (s *sampler) observe(dir Direction, sc Subcircuit) bool {
	if !dir.Valid() || !sc.Valid() {
		return false
	}
	c := &s.count[dir.index()][sc]
	*c = (*c + 1) % s.interval
	return *c == 0
}

// reset zeroes all counters.
func (s *sampler) reset() {
	s.count = [2][NumSubcircuits]uint32{}
}
