//go:build esp8266 && espwifi

package main

import (
	"vrtt/backend/sysclk"
	"vrtt/core"
)

// With the WiFi stack linked in, FRC2 belongs to the SDK, so the RTT runs
// on the system time and a software timer.
func newBackend(bridge core.RTCBridge, retained *core.Retained) (core.CounterDriver, func(), string) {
	scheduler := core.NewScheduler(wdevNow)
	driver := sysclk.New(sysclk.ClockFunc(wdevNow), scheduler, bridge, retained)
	return driver, scheduler.Dispatch, "sysclk"
}
