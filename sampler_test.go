package main

import "testing"

func TestSamplerFiresOnNthCall(t *testing.T) {
	assert, _ := makeAR(t)

	s := newSampler(100)
	for i := 1; i < 100; i++ {
		assert.False(s.observe(DirectionOut, 1), "call %d", i)
	}
	assert.True(s.observe(DirectionOut, 1))
	assert.EqualValues(0, s.count[DirectionOut.index()][1])

	// the next round starts over
	assert.False(s.observe(DirectionOut, 1))
	assert.EqualValues(1, s.count[DirectionOut.index()][1])
}

func TestSamplerPairsAreIndependent(t *testing.T) {
	assert, _ := makeAR(t)

	s := newSampler(3)
	s.observe(DirectionOut, 0)
	s.observe(DirectionOut, 0)
	assert.False(s.observe(DirectionIn, 0))
	assert.False(s.observe(DirectionOut, 2))
	assert.True(s.observe(DirectionOut, 0))
	assert.EqualValues(1, s.count[DirectionIn.index()][0])
	assert.EqualValues(1, s.count[DirectionOut.index()][2])
}

func TestSamplerIntervalOne(t *testing.T) {
	assert, _ := makeAR(t)

	s := newSampler(1)
	for i := 0; i < 5; i++ {
		assert.True(s.observe(DirectionIn, 2))
	}
	assert.EqualValues(0, s.count[DirectionIn.index()][2])

	assert.EqualValues(1, newSampler(0).interval)
}

func TestSamplerInvalidInput(t *testing.T) {
	assert, _ := makeAR(t)

	s := newSampler(1)
	assert.False(s.observe(DirectionOut, NumSubcircuits))
	assert.False(s.observe(DirectionOut, 1000))
	assert.False(s.observe(Direction(0), 0))
	assert.False(s.observe(Direction(7), 0))
	assert.Equal([2][NumSubcircuits]uint32{}, s.count)
}

func TestSamplerCounterInRange(t *testing.T) {
	assert, _ := makeAR(t)

	s := newSampler(7)
	for i := 0; i < 100; i++ {
		s.observe(DirectionIn, Subcircuit(i%NumSubcircuits))
		for _, row := range s.count {
			for _, c := range row {
				assert.Less(c, uint32(7))
			}
		}
	}
}
