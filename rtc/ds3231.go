package rtc

import (
	"errors"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ds3231"
)

// DS3231Calibration maps one-second DS3231 ticks to microseconds
const DS3231Calibration = 1000000 << 12

var ErrClockInvalid = errors.New("ds3231: oscillator stopped, time invalid")

// DS3231 bridges through an external battery-backed DS3231. Ticks are
// seconds, so a restore is exact only to within one second; use it on
// boards without an always-on on-chip counter.
type DS3231 struct {
	dev  ds3231.Device
	last uint32
	err  error
}

// NewDS3231 creates a bridge on bus. The bus must already be configured.
func NewDS3231(bus drivers.I2C) *DS3231 {
	d := &DS3231{dev: ds3231.New(bus)}
	d.dev.Configure()
	return d
}

// Validate checks the oscillator stop flag. After a battery failure the
// DS3231 time is meaningless and the retained record must not be trusted.
func (d *DS3231) Validate() error {
	if !d.dev.IsTimeValid() {
		return ErrClockInvalid
	}
	return nil
}

// Counter returns seconds since the Unix epoch. A failed read returns the
// last good value so elapsed time is never negative.
func (d *DS3231) Counter() uint32 {
	t, err := d.dev.ReadTime()
	if err != nil {
		d.err = err
		return d.last
	}
	d.err = nil
	d.last = uint32(t.Unix())
	return d.last
}

// Calibration returns the fixed one second per tick factor
func (d *DS3231) Calibration() uint32 {
	return DS3231Calibration
}

// Err returns the error of the last read, if any
func (d *DS3231) Err() error {
	return d.err
}
