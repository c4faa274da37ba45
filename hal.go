package main

// This file is the hardware abstraction layer between the GPIO backend and
// the periph.io library.  The hardware backend never calls periph directly;
// it goes through a gpioHost so that tests can substitute fake pins (see
// periph.io/x/conn/v3/gpio/gpiotest) without touching real hardware.

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// gpioHost bundles the two periph entry points the backend needs.
type gpioHost struct {
	// init prepares the host drivers.  host.Init can safely be called
	// multiple times; subsequent calls are no-ops.
	init func() error
	// byName returns the pin registered under name, or nil.
	byName func(name string) gpio.PinIO
}

// periphHost is the production gpioHost.
var periphHost = gpioHost{
	init: func() error {
		_, err := host.Init()
		return err
	},
	byName: gpioreg.ByName,
}

// lineName returns the periph name of a line given by its BCM number.
func lineName(n int) string {
	return fmt.Sprintf("GPIO%d", n)
}
