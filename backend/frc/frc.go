// Package frc drives the RTT from the FRC2 free-running timer.
//
// FRC2 is a 32-bit up-counter at 312.5 kHz with a compare interrupt. Its
// raw range is reloaded at Overflow ticks so the derived microsecond value
// wraps at 2^32. The counter stops in light and deep sleep; the RTC bridge
// covers the gap on restore.
package frc

import (
	"vrtt/core"
)

// Driver implements core.CounterDriver on FRC2
type Driver struct {
	regs     Registers
	rtc      core.RTCBridge
	retained *core.Retained

	alarmSet uint32 // requested alarm in ticks
	cb       core.Callback
	arg      interface{}
	active   uint32 // compare value in use, 0 when the compare is the overflow
}

// New creates an FRC2 driver. retained is shared with the RTT core.
func New(regs Registers, rtc core.RTCBridge, retained *core.Retained) *Driver {
	if regs == nil || rtc == nil || retained == nil {
		panic("frc: registers, RTC bridge and retained storage required")
	}
	return &Driver{
		regs:     regs,
		rtc:      rtc,
		retained: retained,
	}
}

// Init configures the divider, starts the counter and arms the overflow
func (d *Driver) Init() {
	core.DebugPrintln("[FRC] init saved=" + core.Utoa(d.retained.State.ActiveCounter) +
		" rtc_saved=" + core.Utoa(d.retained.State.RTCCounter))

	d.regs.SetCtrl(ClkDiv256<<CtrlClkDivPos | CtrlEnable)
	d.regs.SetAlarm(Overflow)
	d.active = 0
}

// PowerOn restarts the counter and unmasks its interrupt
func (d *Driver) PowerOn() {
	d.regs.SetCtrl(d.regs.Ctrl() | CtrlEnable)
	d.regs.EnableInterrupt(d.isr)
}

// PowerOff stops the counter and masks its interrupt
func (d *Driver) PowerOff() {
	d.regs.SetCtrl(d.regs.Ctrl() &^ CtrlEnable)
	d.regs.DisableInterrupt()
}

// Counter returns the hardware counter in microseconds
func (d *Driver) Counter() uint32 {
	return countToUS(d.regs.Count())
}

// SetAlarm stores the callback and programs the compare register
func (d *Driver) SetAlarm(alarmUS uint32, cb core.Callback, arg interface{}) {
	count := d.regs.Count()

	d.alarmSet = usToCompare(uint64(alarmUS)) % Overflow
	d.cb = cb
	d.arg = arg

	d.update(count)
}

// ClearAlarm forgets the alarm. A compare already programmed still fires
// but finds no callback and re-arms the overflow.
func (d *Driver) ClearAlarm() {
	d.alarmSet = 0
	d.cb = nil
	d.arg = nil
}

// SaveCounter snapshots the raw count and the RTC
func (d *Driver) SaveCounter() {
	state := core.DisableInterrupts()
	d.retained.State.ActiveCounter = d.regs.Count()
	d.retained.State.RTCCounter = d.rtc.Counter()
	core.RestoreInterrupts(state)
}

// RestoreCounter loads the saved count advanced by the time the RTC
// measured since the save. The same applies after reboot, since the
// counter restarts from zero either way.
func (d *Driver) RestoreCounter(inInit bool) {
	state := core.DisableInterrupts()
	elapsed := core.ElapsedUS(d.rtc, d.retained.State.RTCCounter)
	diff := usToCount(uint64(elapsed))
	d.regs.SetLoad(uint32((uint64(d.retained.State.ActiveCounter) + uint64(diff)) % Overflow))
	core.RestoreInterrupts(state)

	core.DebugPrintln("[FRC] restore elapsed_us=" + core.Utoa(elapsed) + " ticks=" + core.Utoa(diff))
}

// update programs the compare for the alarm when it lies ahead of count,
// otherwise for the overflow
func (d *Driver) update(count uint32) {
	if d.cb != nil && d.alarmSet > count {
		d.active = d.alarmSet
		d.regs.SetAlarm(d.active)
	} else {
		d.active = 0
		d.regs.SetAlarm(Overflow)
	}
}

// isr handles the compare interrupt
func (d *Driver) isr() {
	d.regs.ClearInterrupt()
	count := d.regs.Count() % Overflow

	if d.active == 0 {
		// Overflow: wrap the raw counter at the emulated boundary
		d.regs.SetLoad(count)
	}

	if d.active == d.alarmSet && d.cb != nil {
		cb, arg := d.cb, d.arg
		d.cb = nil
		d.arg = nil
		cb(arg)
	}

	d.update(d.regs.Count() % Overflow)
}
