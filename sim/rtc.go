package sim

import (
	"math/bits"
)

// RTC models the always-on RC oscillator counter. Its real frequency
// differs from the nominal one by the configured drift.
type RTC struct {
	m           *Machine
	freqMilliHz uint64
	ticks       uint64
	rem         uint64
	lastNS      int64
}

func newRTC(m *Machine, nominalHz uint32, driftPPM int32) *RTC {
	freq := uint64(int64(nominalHz) * 1000 * (1000000 + int64(driftPPM)) / 1000000)
	return &RTC{m: m, freqMilliHz: freq, lastNS: m.now}
}

func (r *RTC) sync() {
	dt := uint64(r.m.now - r.lastNS)
	r.lastNS = r.m.now

	hi, lo := bits.Mul64(dt, r.freqMilliHz)
	var carry uint64
	lo, carry = bits.Add64(lo, r.rem, 0)
	hi += carry
	q, rem := bits.Div64(hi, lo, 1e12)
	r.ticks += q
	r.rem = rem
}

// Counter returns the raw tick count
func (r *RTC) Counter() uint32 {
	r.sync()
	return uint32(r.ticks)
}

// Calibration returns the exact Q12 factor of the drifted oscillator
func (r *RTC) Calibration() uint32 {
	return uint32((uint64(1000000) << 12) * 1000 / r.freqMilliHz)
}

// reset clears the counter, as after losing all power
func (r *RTC) reset() {
	r.ticks = 0
	r.rem = 0
	r.lastNS = r.m.now
}
