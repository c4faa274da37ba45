package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.bug.st/serial"
)

// DefaultBaudRate is used for serial trace sources when no rate is given.
const DefaultBaudRate = 115200

// openTraceSource opens the reader a trace is replayed from: a serial port
// when port is set, otherwise the file at path, or standard input for "-".
func openTraceSource(path, port string, baud int) (io.ReadCloser, error) {
	if port != "" {
		if path != "" && path != "-" {
			return nil, errors.New("--trace and --serial are mutually exclusive")
		}
		if baud == 0 {
			baud = DefaultBaudRate
		}
		p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("opening serial port %s: %w", port, err)
		}
		return p, nil
	}
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	return f, nil
}
