//go:build rp2040

package main

import (
	"machine"

	"vrtt/core"
	"vrtt/rtc"
)

// initDS3231 brings up I2C0 (SDA=GP4, SCL=GP5) and the battery-backed
// DS3231 that bridges the RTT across resets.
func initDS3231() *rtc.DS3231 {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.GP4,
		SCL:       machine.GP5,
	})
	if err != nil {
		core.DebugPrintln("[RTC] I2C0 configure failed: " + err.Error())
	}

	ds := rtc.NewDS3231(bus)
	if err := ds.Validate(); err != nil {
		core.DebugPrintln("[RTC] DS3231: " + err.Error())
	}
	return ds
}
