package core

// Callback is invoked from interrupt context when an alarm or overflow
// event fires. Arg is the opaque value registered with the callback.
type Callback func(arg interface{})

// CounterDriver is the accurate hardware counter the virtual RTT rides on.
// Every implementation presents a 32-bit counter at 1 MHz that wraps at
// 2^32 us, independent of the frequency of the underlying hardware.
// Exactly one driver is active per build.
type CounterDriver interface {
	// Init prepares the hardware counter. Called once at boot.
	Init()

	// PowerOn starts the counter and enables its interrupt.
	PowerOn()

	// PowerOff stops the counter and masks its interrupt.
	PowerOff()

	// Counter returns the current hardware counter in microseconds.
	Counter() uint32

	// SetAlarm arms a single hardware alarm at alarmUS (driver time base).
	// cb is called with arg from interrupt context when it fires.
	SetAlarm(alarmUS uint32, cb Callback, arg interface{})

	// ClearAlarm removes the alarm. Safe to call when nothing is armed.
	ClearAlarm()

	// SaveCounter snapshots the counter and the RTC into retained storage.
	SaveCounter()

	// RestoreCounter folds the time elapsed since SaveCounter, measured by
	// the RTC, back into the counter. inInit is true for the first restore
	// after a reboot.
	RestoreCounter(inInit bool)
}
