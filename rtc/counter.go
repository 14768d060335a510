// Package rtc provides the always-on clocks that bridge the RTT across
// sleep and reboot.
//
// Each bridge reports a raw tick count and a Q12 calibration factor
// (microseconds per tick shifted left by core.CalibrationShift).
package rtc

import (
	"sync/atomic"

	"vrtt/core"
)

// ESP8266Calibration is the nominal factor of the ESP8266 RTC oscillator
// (about 150 kHz, 6.67 us per tick).
const ESP8266Calibration = (20<<core.CalibrationShift + 1) / 3

// Counter is a bridge over a free-running counter register
type Counter struct {
	read        func() uint32
	calibration uint32 // atomic
}

// NewCounter creates a bridge reading ticks from read
func NewCounter(read func() uint32, calibration uint32) *Counter {
	if read == nil {
		panic("rtc: counter read function required")
	}
	if calibration == 0 {
		panic("rtc: calibration must be non-zero")
	}
	return &Counter{read: read, calibration: calibration}
}

// Counter returns the raw tick count
func (c *Counter) Counter() uint32 {
	return c.read()
}

// Calibration returns the current Q12 microseconds per tick
func (c *Counter) Calibration() uint32 {
	return atomic.LoadUint32(&c.calibration)
}

// SetCalibration replaces the calibration factor. Zero is ignored.
func (c *Counter) SetCalibration(calibration uint32) {
	if calibration == 0 {
		return
	}
	atomic.StoreUint32(&c.calibration, calibration)
}
