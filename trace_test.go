package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseDirection(t *testing.T) {
	assert, _ := makeAR(t)

	for _, s := range []string{"out", "OUTBOUND", "forward", " fwd "} {
		d, err := ParseDirection(s)
		assert.NoError(err, s)
		assert.Equal(DirectionOut, d, s)
	}
	for _, s := range []string{"in", "Inbound", "backward", "bwd"} {
		d, err := ParseDirection(s)
		assert.NoError(err, s)
		assert.Equal(DirectionIn, d, s)
	}
	_, err := ParseDirection("sideways")
	assert.Error(err)

	assert.Equal("forward", DirectionOut.String())
	assert.Equal("backward", DirectionIn.String())
	assert.Equal("Direction(0)", Direction(0).String())
}

func TestParseTraceLine(t *testing.T) {
	assert, require := makeAR(t)

	tl, err := parseTraceLine("in 2 split")
	require.NoError(err)
	assert.Equal(traceLine{kind: traceCell, dir: DirectionIn, sc: 2, notable: true}, tl)

	tl, err = parseTraceLine("fwd 7")
	require.NoError(err)
	assert.Equal(traceLine{kind: traceCell, dir: DirectionOut, sc: 7}, tl)

	tl, err = parseTraceLine("setup  JOIN received on sub-circuit 1")
	require.NoError(err)
	assert.Equal(traceSetup, tl.kind)
	assert.Equal("JOIN received on sub-circuit 1", tl.text)

	tl, err = parseTraceLine("instruction INSTRUCTION sent on sub-circuit 0")
	require.NoError(err)
	assert.Equal(traceInstruction, tl.kind)

	tl, err = parseTraceLine("wait 20ms")
	require.NoError(err)
	assert.Equal(20*time.Millisecond, tl.wait)

	for _, bad := range []string{
		"up 1",
		"out",
		"out x",
		"out -1",
		"out 1 loud",
		"out 1 split extra",
		"setup",
		"wait",
		"wait later",
		"wait -1s",
	} {
		_, err := parseTraceLine(bad)
		assert.Error(err, bad)
	}
}

func TestReplayTrace(t *testing.T) {
	assert, require := makeAR(t)

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	backend := &recordingBackend{}
	d := NewDemo(testConfig(2), backend, WithClock(&fakeClock{}), WithLogger(logger))
	require.NoError(d.Init())

	trace := `
# two cells on sub-circuit 1, the second one is sampled
out 1
out 1 split
setup Multipath circuit setup finished (3 sub-circuits)
instruction INFO received on sub-circuit 0
bogus line here
in 9
wait 1ms
in 0
`
	stats, err := ReplayTrace(context.Background(), strings.NewReader(trace), d, 0, logger)
	require.NoError(err)
	assert.Equal(TraceStats{Cells: 4, Setups: 1, Instructions: 1, Skipped: 1}, stats)

	assert.Equal([]setCall{{DirectionOut, 1, true, true}}, backend.calls)
	assert.EqualValues(1, d.sampler.count[DirectionIn.index()][0])
	assert.Equal(1, logs.FilterMessage("skipping malformed trace line").Len())
	assert.Equal(1, logs.FilterMessage("Multipath circuit setup finished (3 sub-circuits)").Len())
}

func TestReplayTraceCancel(t *testing.T) {
	assert, _ := makeAR(t)

	d, _, _ := newTestDemo(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := ReplayTrace(ctx, strings.NewReader("out 0\nout 1\nout 2\n"), d, time.Hour, nil)
	assert.ErrorIs(err, context.Canceled)
	assert.Equal(0, stats.Cells)
}

func TestReplayTraceCancelIdleSource(t *testing.T) {
	assert, require := makeAR(t)

	d, backend, _ := newTestDemo(t, 1)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		stats TraceStats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := ReplayTrace(ctx, pr, d, 0, nil)
		done <- result{stats, err}
	}()

	_, err := io.WriteString(pw, "out 0\n")
	require.NoError(err)
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.ErrorIs(res.err, context.Canceled)
		assert.Equal(1, res.stats.Cells)
	case <-time.After(5 * time.Second):
		require.Fail("replay did not return after cancel while the source was idle")
	}
	assert.Equal(1, backend.onCalls())
}

func TestReplayTraceSkipsOversizedLine(t *testing.T) {
	assert, require := makeAR(t)

	d, backend, _ := newTestDemo(t, 1)
	trace := "out 0\n" + strings.Repeat("x", 70*1024) + "\nin 2\n" + strings.Repeat("y", maxTraceLine+1)
	stats, err := ReplayTrace(context.Background(), strings.NewReader(trace), d, 0, nil)
	require.NoError(err)
	assert.Equal(TraceStats{Cells: 2, Skipped: 2}, stats)
	assert.Equal(2, backend.onCalls())
}

func TestReplayTraceLastLineWithoutNewline(t *testing.T) {
	assert, require := makeAR(t)

	d, _, _ := newTestDemo(t, 1)
	stats, err := ReplayTrace(context.Background(), strings.NewReader("out 0\nin 1"), d, 0, nil)
	require.NoError(err)
	assert.Equal(2, stats.Cells)
}
