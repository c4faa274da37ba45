package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// A cell trace is a line oriented description of relay cells, used to drive
// the demo without a running relay.  Each line is one of:
//
//	out 1            cell on sub-circuit 1, outbound
//	in 2 split       cell on sub-circuit 2, inbound, part of a split circuit
//	setup JOIN sent  setup milestone, logged verbatim
//	instruction INFO received on sub-circuit 0
//	wait 250ms       pause before the next line
//
// Empty lines and lines starting with '#' are ignored.

// TraceStats summarises a replay.
type TraceStats struct {
	Cells        int
	Setups       int
	Instructions int
	Skipped      int
}

type traceKind int

const (
	traceCell traceKind = iota
	traceSetup
	traceInstruction
	traceWait
)

type traceLine struct {
	kind    traceKind
	dir     Direction
	sc      Subcircuit
	notable bool
	text    string
	wait    time.Duration
}

// parseTraceLine parses one non-empty, non-comment trace line.
func parseTraceLine(line string) (tl traceLine, err error) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "setup", "instruction":
		tl.kind = traceSetup
		if strings.EqualFold(fields[0], "instruction") {
			tl.kind = traceInstruction
		}
		tl.text = strings.TrimSpace(strings.TrimSpace(line)[len(fields[0]):])
		if tl.text == "" {
			return tl, fmt.Errorf("%s without text", fields[0])
		}
		return tl, nil
	case "wait":
		if len(fields) != 2 {
			return tl, fmt.Errorf("wait needs one duration")
		}
		tl.kind = traceWait
		if tl.wait, err = time.ParseDuration(fields[1]); err != nil {
			return tl, err
		}
		if tl.wait < 0 {
			return tl, fmt.Errorf("negative wait %s", tl.wait)
		}
		return tl, nil
	}

	if len(fields) < 2 || len(fields) > 3 {
		return tl, fmt.Errorf("expected <direction> <subcircuit> [split], got %d fields", len(fields))
	}
	tl.kind = traceCell
	if tl.dir, err = ParseDirection(fields[0]); err != nil {
		return tl, err
	}
	n, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return tl, fmt.Errorf("bad subcircuit %q: %w", fields[1], err)
	}
	tl.sc = Subcircuit(n)
	if len(fields) == 3 {
		if !strings.EqualFold(fields[2], "split") {
			return tl, fmt.Errorf("unknown cell flag %q", fields[2])
		}
		tl.notable = true
	}
	return tl, nil
}

// maxTraceLine bounds a single trace line.  Longer lines, such as noise on a
// serial link, are discarded and counted as skipped.
const maxTraceLine = 4096

// rawLine is one line read from a trace source.
type rawLine struct {
	text    string
	tooLong bool
	err     error
}

// readTraceLines sends the lines of r to out until r is exhausted or fails,
// or done is closed.  It closes out when it returns.
func readTraceLines(r io.Reader, out chan<- rawLine, done <-chan struct{}) {
	defer close(out)
	send := func(rl rawLine) bool {
		select {
		case out <- rl:
			return true
		case <-done:
			return false
		}
	}

	br := bufio.NewReaderSize(r, maxTraceLine)
	for {
		var rl rawLine
		chunk, err := br.ReadSlice('\n')
		for err == bufio.ErrBufferFull {
			rl.tooLong = true
			_, err = br.ReadSlice('\n')
		}
		if !rl.tooLong {
			rl.text = string(chunk)
		}
		if rl.tooLong || len(chunk) > 0 {
			if !send(rl) {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				send(rawLine{err: err})
			}
			return
		}
	}
}

// ReplayTrace feeds the cells of a trace into d, sleeping pace between
// consecutive cells.  It returns when r is exhausted, when ctx is cancelled,
// or when reading fails.  Cancellation does not wait for r: a read that is
// still blocked is abandoned, and the caller should close r afterwards.
// Malformed and oversized lines are logged and skipped.  Out-of-range
// sub-circuits are passed through; the demo ignores them.
func ReplayTrace(ctx context.Context, r io.Reader, d *Demo, pace time.Duration, logger *zap.Logger) (stats TraceStats, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("trace")

	lines := make(chan rawLine)
	done := make(chan struct{})
	defer close(done)
	go readTraceLines(r, lines, done)

	lineNo := 0
	for {
		if e := ctx.Err(); e != nil {
			return stats, e
		}
		var (
			rl rawLine
			ok bool
		)
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case rl, ok = <-lines:
		}
		if !ok {
			return stats, nil
		}
		if rl.err != nil {
			return stats, fmt.Errorf("reading trace: %w", rl.err)
		}
		lineNo++
		if rl.tooLong {
			stats.Skipped++
			logger.Warn("skipping oversized trace line", zap.Int("line", lineNo), zap.Int("limit", maxTraceLine))
			continue
		}

		line := strings.TrimSpace(rl.text)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tl, e := parseTraceLine(line)
		if e != nil {
			stats.Skipped++
			logger.Warn("skipping malformed trace line", zap.Int("line", lineNo), zap.Error(e))
			continue
		}

		switch tl.kind {
		case traceCell:
			d.RegisterCell(tl.sc, tl.dir, tl.notable)
			stats.Cells++
			if e := sleepCtx(ctx, pace); e != nil {
				return stats, e
			}
		case traceSetup:
			d.RegisterSetup("%s", tl.text)
			stats.Setups++
		case traceInstruction:
			d.RegisterInstruction("%s", tl.text)
			stats.Instructions++
		case traceWait:
			if e := sleepCtx(ctx, tl.wait); e != nil {
				return stats, e
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
