// Virtual RTT core
// Presents a 1 MHz, 32-bit wrap-around counter with one alarm and one
// overflow callback on top of whichever CounterDriver the target provides.
// The always-on RTC bridges the time the driver spends powered down.
package core

// overflowSentinel is the alarmActive value meaning "the armed hardware
// event is the overflow". A user alarm requested at exactly 0 is armed as
// the same event and fires in the same dispatch as the overflow callback.
const overflowSentinel = 0

// MinSleepUS is the shortest sleep PMSleepEnter reports while an event is
// armed. An event that is due right now still needs a timer wake source.
const MinSleepUS = 1

// RTT is the virtual real-time timer. There is one per system; it owns
// its CounterDriver exclusively.
type RTT struct {
	hw       CounterDriver
	rtc      RTCBridge
	retained *Retained
	offset   uint32

	alarm       uint32      // alarm as requested
	alarmCB     Callback    // nil when no alarm is registered
	alarmArg    interface{} // argument for alarmCB
	overflowCB  Callback    // nil when overflow is disabled
	overflowArg interface{} // argument for overflowCB
	alarmActive uint32      // value programmed in hardware, overflowSentinel for overflow
	alarmSet    bool        // whether any hardware event is armed
	wakeup      bool        // next dispatch is the wake-up from sleep

	isr Callback
}

// Status is a diagnostic snapshot of the RTT state.
type Status struct {
	Counter         uint32
	Alarm           uint32
	AlarmActive     uint32
	AlarmPending    bool // an alarm callback is registered
	AlarmArmed      bool // any hardware event is armed
	OverflowEnabled bool
	OverflowArmed   bool // the armed hardware event is the overflow
	Wakeup          bool
}

// New creates the RTT on top of hw. retained must be the same record the
// driver was constructed with.
func New(hw CounterDriver, rtc RTCBridge, retained *Retained) *RTT {
	if hw == nil {
		panic("RTT counter driver not configured")
	}
	if rtc == nil || retained == nil {
		panic("RTT requires an RTC bridge and retained storage")
	}
	r := &RTT{
		hw:       hw,
		rtc:      rtc,
		retained: retained,
	}
	r.isr = r.dispatch
	return r
}

// Init initializes the driver, restores the counter from retained storage
// after reboot or deep sleep, clears alarm and overflow state, and powers
// the counter on. Call exactly once at boot.
func (r *RTT) Init() {
	DebugPrintln("[RTT] init rtc=" + Utoa(r.rtc.Counter()))

	r.hw.Init()
	r.RestoreCounter(true)

	r.ClearAlarm()
	r.ClearOverflowCallback()

	r.PowerOn()
}

// PowerOn enables the hardware counter and its interrupt.
func (r *RTT) PowerOn() {
	r.hw.PowerOn()
}

// PowerOff disables the hardware counter and its interrupt.
func (r *RTT) PowerOff() {
	r.hw.PowerOff()
}

// Counter returns the virtual counter in microseconds.
func (r *RTT) Counter() uint32 {
	state := DisableInterrupts()
	counter := r.hw.Counter() + r.offset
	RestoreInterrupts(state)
	return counter
}

// SetCounter rebases the counter so the next Counter call returns value.
func (r *RTT) SetCounter(value uint32) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	r.offset = value - r.hw.Counter()
	RecordTiming(EvtSetCounter, value, value, r.offset)

	r.updateHWAlarm()
}

// SetAlarm registers the single alarm slot. cb is called with arg from
// interrupt context once the counter reaches alarm. A previous alarm is
// replaced.
func (r *RTT) SetAlarm(alarm uint32, cb Callback, arg interface{}) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	r.alarm = alarm
	r.alarmCB = cb
	r.alarmArg = arg
	RecordTiming(EvtSetAlarm, r.hw.Counter()+r.offset, alarm, 0)

	r.updateHWAlarm()
}

// ClearAlarm removes the alarm. It is idempotent.
func (r *RTT) ClearAlarm() {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	r.alarm = 0
	r.alarmCB = nil
	r.alarmArg = nil
	RecordTiming(EvtClearAlarm, r.hw.Counter()+r.offset, 0, 0)

	r.updateHWAlarm()
}

// Alarm returns the last requested alarm value, including one that has
// already fired. It is 0 after ClearAlarm.
func (r *RTT) Alarm() uint32 {
	return r.alarm
}

// SetOverflowCallback registers cb to run each time the counter wraps
// through zero.
func (r *RTT) SetOverflowCallback(cb Callback, arg interface{}) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	r.overflowCB = cb
	r.overflowArg = arg
	RecordTiming(EvtSetOverflow, r.hw.Counter()+r.offset, 1, 0)

	r.updateHWAlarm()
}

// ClearOverflowCallback disables the overflow callback. It is idempotent.
func (r *RTT) ClearOverflowCallback() {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	r.overflowCB = nil
	r.overflowArg = nil
	RecordTiming(EvtSetOverflow, r.hw.Counter()+r.offset, 0, 0)

	r.updateHWAlarm()
}

// SaveCounter snapshots the driver counter and the RTC into retained
// storage. Call before any sleep or reboot.
func (r *RTT) SaveCounter() {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	r.hw.SaveCounter()
	r.retained.State.Offset = r.offset
	r.retained.Persist()

	RecordTiming(EvtSave, r.hw.Counter()+r.offset,
		r.retained.State.RTCCounter, r.retained.State.ActiveCounter)
}

// RestoreCounter folds the time elapsed since SaveCounter into the counter.
// With inInit the retained record is reloaded first; a record lost to a
// full power loss restarts the counter from zero.
func (r *RTT) RestoreCounter(inInit bool) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	if inInit {
		if !r.retained.Load() {
			r.retained.State = RetainedState{RTCCounter: r.rtc.Counter()}
			RecordTiming(EvtColdBoot, 0, r.retained.State.RTCCounter, 0)
			DebugPrintln("[RTT] retained record invalid, cold boot")
		}
		r.offset = r.retained.State.Offset
	}

	r.hw.RestoreCounter(inInit)

	RecordTiming(EvtRestore, r.hw.Counter()+r.offset, flagValue(inInit), r.retained.State.RTCCounter)
}

// PrepareReboot saves the counters before a software reset.
func (r *RTT) PrepareReboot() {
	DebugPrintln("[RTT] prepare reboot")
	r.SaveCounter()
}

// Status returns a diagnostic snapshot.
func (r *RTT) Status() Status {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	return Status{
		Counter:         r.hw.Counter() + r.offset,
		Alarm:           r.alarm,
		AlarmActive:     r.alarmActive,
		AlarmPending:    r.alarmCB != nil,
		AlarmArmed:      r.alarmSet,
		OverflowEnabled: r.overflowCB != nil,
		OverflowArmed:   r.alarmSet && r.alarmActive == overflowSentinel,
		Wakeup:          r.wakeup,
	}
}

// updateHWAlarm arms the next hardware event: the alarm if it lies ahead
// of the counter or no overflow callback exists, otherwise the overflow,
// otherwise nothing. Must be called with interrupts disabled.
func (r *RTT) updateHWAlarm() {
	counter := r.hw.Counter() + r.offset

	switch {
	case r.alarmCB != nil && (r.alarm > counter || r.overflowCB == nil):
		r.alarmActive = r.alarm
		r.alarmSet = true
		r.hw.SetAlarm(r.alarm-r.offset, r.isr, nil)
		RecordTiming(EvtArmAlarm, counter, r.alarm, r.alarm-r.offset)
	case r.overflowCB != nil:
		r.alarmActive = overflowSentinel
		r.alarmSet = true
		r.hw.SetAlarm(overflowSentinel-r.offset, r.isr, nil)
		RecordTiming(EvtArmAlarm, counter, overflowSentinel, overflowSentinel-r.offset)
	default:
		r.alarmSet = false
		r.hw.ClearAlarm()
		RecordTiming(EvtDisarm, counter, 0, 0)
	}
}

// dispatch runs in interrupt context on every hardware alarm.
func (r *RTT) dispatch(_ interface{}) {
	alarm := r.alarmActive

	if r.wakeup {
		r.wakeup = false
		DebugAsync("[RTT] wakeup alarm=" + Utoa(alarm))
	}

	if alarm == r.alarm && r.alarmCB != nil {
		// Detach before invoking: the callback may arm a new alarm, and
		// clearing afterwards would drop it. The requested value stays
		// readable through Alarm until the next SetAlarm or ClearAlarm.
		state := DisableInterrupts()
		cb, arg := r.alarmCB, r.alarmArg
		r.alarmCB = nil
		r.alarmArg = nil
		r.updateHWAlarm()
		RestoreInterrupts(state)

		RecordTiming(EvtAlarmFire, r.Counter(), alarm, 0)
		cb(arg)
	}

	if alarm == overflowSentinel {
		state := DisableInterrupts()
		r.updateHWAlarm()
		cb, arg := r.overflowCB, r.overflowArg
		RestoreInterrupts(state)

		RecordTiming(EvtOverflow, r.Counter(), flagValue(cb != nil), 0)
		if cb != nil {
			cb(arg)
		}
	}
}

func flagValue(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
