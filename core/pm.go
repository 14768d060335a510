package core

// SleepMode identifies the low-power mode the power controller enters.
type SleepMode uint8

// Sleep modes, deepest last
const (
	SleepModem SleepMode = iota // CPU idles, timers keep running
	SleepLight                  // counter stopped, RAM retained
	SleepDeep                   // counter stopped, only retained memory survives; wake is a reboot
)

// WakeupCause is the wake source reported by the power controller.
type WakeupCause uint8

// Wake-up causes
const (
	WakeupUndefined WakeupCause = iota
	WakeupTimer
	WakeupGPIO
	WakeupUART
)

func (m SleepMode) String() string {
	switch m {
	case SleepModem:
		return "modem"
	case SleepLight:
		return "light"
	case SleepDeep:
		return "deep"
	default:
		return "unknown"
	}
}

func (c WakeupCause) String() string {
	switch c {
	case WakeupTimer:
		return "timer"
	case WakeupGPIO:
		return "gpio"
	case WakeupUART:
		return "uart"
	default:
		return "undefined"
	}
}

// PMSleepEnter is called by the power controller before entering mode.
// It saves the counters and returns the microseconds until the armed
// event, to be programmed as the timer wake source, or 0 when nothing is
// armed.
func (r *RTT) PMSleepEnter(mode SleepMode) uint32 {
	r.SaveCounter()

	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	if !r.alarmSet {
		RecordTiming(EvtSleepEnter, r.hw.Counter()+r.offset, uint32(mode), 0)
		return 0
	}

	counter := r.hw.Counter() + r.offset
	// Modular distance: an armed overflow, or an alarm past the wrap, lies
	// numerically behind the counter.
	diff := r.alarmActive - counter
	if diff == 0 {
		diff = MinSleepUS
	}
	r.wakeup = true

	DebugPrintln("[RTT] sleep " + mode.String() + " alarm=" + Utoa(r.alarmActive) +
		" counter=" + Utoa(counter) + " diff=" + Utoa(diff))
	RecordTiming(EvtSleepEnter, counter, uint32(mode), diff)

	return diff
}

// PMSleepExit is called by the power controller after waking from light
// sleep. A timer wake dispatches the armed event directly, since the
// interrupt was consumed by the wake-up path. The RTC can restore the
// counter slightly short of the event; it then stays armed in hardware
// and fires once the counter gets there.
func (r *RTT) PMSleepExit(cause WakeupCause) {
	r.RestoreCounter(false)
	counter := r.Counter()
	RecordTiming(EvtSleepExit, counter, uint32(cause), 0)

	if cause == WakeupTimer && r.alarmSet && eventReached(r.alarmActive, counter) {
		r.dispatch(nil)
		return
	}

	// The counter jumped by the sleep time; drivers that schedule relative
	// to their own clock need the event re-derived.
	state := DisableInterrupts()
	if r.alarmSet {
		r.updateHWAlarm()
	}
	RestoreInterrupts(state)
}

// eventReached reports whether counter is at or past event, with event at
// most half a wrap behind
func eventReached(event, counter uint32) bool {
	d := event - counter
	return d == 0 || d > 1<<31
}
