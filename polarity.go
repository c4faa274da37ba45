package main

import "periph.io/x/conn/v3/gpio"

// lineLevel translates the logical state of an indicator into the voltage
// level its line must be driven to.  LEDs wired between the line and ground
// light on a high level.  LEDs wired between the supply and the line
// (active low) light when the line sinks current, that is on a low level.
func lineLevel(on, activeLow bool) gpio.Level {
	if activeLow {
		return gpio.Level(!on)
	}
	return gpio.Level(on)
}
