//go:build esp8266 && !espwifi

package main

import (
	"vrtt/backend/frc"
	"vrtt/core"
)

// newBackend drives the RTT from FRC2. It returns the driver, the function
// that delivers its interrupt from the main loop, and the backend name.
func newBackend(bridge core.RTCBridge, retained *core.Retained) (core.CounterDriver, func(), string) {
	hw := frc.NewHardware()
	return frc.New(hw, bridge, retained), hw.Poll, "frc"
}
