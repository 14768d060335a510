// Package sysclk drives the RTT from the system microsecond clock.
//
// Used where the free-running timer is taken by something else (the WiFi
// stack on esp8266) or absent (rp2040). The alarm is a one-shot software
// timer on a core.Scheduler. The system clock restarts at reboot and may
// stop in sleep, so a local offset carries the RTC-bridged time.
package sysclk

import (
	"vrtt/core"
)

// Clock is the system microsecond clock
type Clock interface {
	Micros() uint32
}

// ClockFunc adapts a function to Clock
type ClockFunc func() uint32

func (f ClockFunc) Micros() uint32 { return f() }

// Driver implements core.CounterDriver on the system clock
type Driver struct {
	clock     Clock
	scheduler *core.Scheduler
	rtc       core.RTCBridge
	retained  *core.Retained

	offset uint32 // lost at reboot; rebuilt from the retained record
	timer  core.Timer
	cb     core.Callback
	arg    interface{}
}

// New creates the driver. scheduler must run on the same clock.
func New(clock Clock, scheduler *core.Scheduler, rtc core.RTCBridge, retained *core.Retained) *Driver {
	if clock == nil || scheduler == nil {
		panic("sysclk: clock and scheduler required")
	}
	if rtc == nil || retained == nil {
		panic("sysclk: RTC bridge and retained storage required")
	}
	d := &Driver{
		clock:     clock,
		scheduler: scheduler,
		rtc:       rtc,
		retained:  retained,
	}
	d.timer.Handler = d.fire
	return d
}

// Init has nothing to configure; the system clock always runs
func (d *Driver) Init() {}

// PowerOn has nothing to enable
func (d *Driver) PowerOn() {}

// PowerOff cancels the pending alarm timer
func (d *Driver) PowerOff() {
	d.scheduler.Remove(&d.timer)
}

// Counter returns the system clock plus the local offset
func (d *Driver) Counter() uint32 {
	return d.clock.Micros() + d.offset
}

// SetAlarm schedules the timer for the modular distance to alarm. An alarm
// behind the counter fires after the next wrap; one equal to the counter is
// a full wrap away, as with a hardware compare.
func (d *Driver) SetAlarm(alarm uint32, cb core.Callback, arg interface{}) {
	delay := uint64(alarm - d.Counter())
	if delay == 0 {
		delay = 1 << 32
	}

	d.cb = cb
	d.arg = arg
	d.scheduler.Set(&d.timer, delay)
}

// ClearAlarm cancels the timer. It is idempotent.
func (d *Driver) ClearAlarm() {
	d.cb = nil
	d.arg = nil
	d.scheduler.Remove(&d.timer)
}

// SaveCounter snapshots the RTC and the counter
func (d *Driver) SaveCounter() {
	state := core.DisableInterrupts()
	d.retained.State.RTCCounter = d.rtc.Counter()
	d.retained.State.ActiveCounter = d.clock.Micros() + d.offset
	core.RestoreInterrupts(state)
}

// RestoreCounter folds the RTC-measured gap into the offset, and after a
// reboot also the counter value saved before it
func (d *Driver) RestoreCounter(inInit bool) {
	state := core.DisableInterrupts()
	elapsed := core.ElapsedUS(d.rtc, d.retained.State.RTCCounter)
	d.offset += elapsed
	if inInit {
		d.offset += d.retained.State.ActiveCounter
	}
	core.RestoreInterrupts(state)

	core.DebugPrintln("[SYSCLK] restore elapsed_us=" + core.Utoa(elapsed) +
		" offset=" + core.Utoa(d.offset))
}

// fire runs from the scheduler with interrupts disabled
func (d *Driver) fire(_ *core.Timer) uint8 {
	cb, arg := d.cb, d.arg
	if cb != nil {
		cb(arg)
	}
	return core.SF_DONE
}
