package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures an RTT state transition for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Clock     uint32 // Virtual counter at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtSetAlarm    = 1  // set_alarm: v1=alarm
	EvtClearAlarm  = 2  // clear_alarm
	EvtArmAlarm    = 3  // hardware armed: v1=alarm_active v2=hardware value
	EvtDisarm      = 4  // nothing armed
	EvtAlarmFire   = 5  // alarm callback invoked: v1=alarm
	EvtOverflow    = 6  // overflow callback path: v1=overflow enabled
	EvtSave        = 7  // save_counter: v1=rtc v2=active
	EvtRestore     = 8  // restore_counter: v1=in_init v2=rtc saved
	EvtSleepEnter  = 9  // pm_sleep_enter: v1=mode v2=duration
	EvtSleepExit   = 10 // pm_sleep_exit: v1=cause
	EvtSetCounter  = 11 // set_counter: v1=value v2=offset
	EvtColdBoot    = 12 // retained record invalid at init
	EvtSetOverflow = 13 // overflow callback installed (v1=1) or removed (v1=0)
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Timing capture ring buffer (non-blocking, for post-mortem)
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
	timingEnabled  bool = true

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetTimingEnabled turns the timing ring on or off
func SetTimingEnabled(enabled bool) {
	timingEnabled = enabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync from interrupt context)
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Drops the message when the channel is full or async output is not running
func DebugAsync(msg string) {
	if !debugEnabled || debugChan == nil {
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RecordTiming captures an event in the ring buffer
// This is always non-blocking and safe from interrupt context
func RecordTiming(eventType uint8, clock, value1, value2 uint32) {
	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the recorded events, oldest first
func TimingEvents() []TimingEvent {
	events := make([]TimingEvent, 0, TimingRingSize)
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns the short name used in dumps
func EventName(eventType uint8) string {
	switch eventType {
	case EvtSetAlarm:
		return "SET_ALARM"
	case EvtClearAlarm:
		return "CLEAR_ALARM"
	case EvtArmAlarm:
		return "ARM"
	case EvtDisarm:
		return "DISARM"
	case EvtAlarmFire:
		return "ALARM"
	case EvtOverflow:
		return "OVERFLOW"
	case EvtSave:
		return "SAVE"
	case EvtRestore:
		return "RESTORE"
	case EvtSleepEnter:
		return "SLEEP_ENTER"
	case EvtSleepExit:
		return "SLEEP_EXIT"
	case EvtSetCounter:
		return "SET_COUNTER"
	case EvtColdBoot:
		return "COLD_BOOT"
	case EvtSetOverflow:
		return "SET_OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// DumpTimingRing outputs the timing ring buffer
// Call after stopping time-critical code, never from an interrupt
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + EventName(evt.EventType) +
			" clock=" + Utoa(evt.Clock) +
			" v1=" + Utoa(evt.Value1) +
			" v2=" + Utoa(evt.Value2))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
