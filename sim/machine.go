// Package sim runs the RTT against modeled hardware in virtual time.
//
// A Machine owns the timer peripherals of one chip: the FRC2 timer, the
// system microsecond clock with its software timer list, the drifting
// always-on RTC and retained RTC memory. It also plays the power
// controller, driving the pm hooks around light and deep sleep, warm
// reboots and full power loss.
package sim

import (
	"errors"
	"time"

	"vrtt/backend/frc"
	"vrtt/backend/sysclk"
	"vrtt/core"
	"vrtt/rtc"
)

// Backend selects the counter driver
type Backend string

const (
	BackendFRC    Backend = "frc"
	BackendSysclk Backend = "sysclk"
)

var ErrUnknownBackend = errors.New("unknown backend")

// Config describes the simulated chip
type Config struct {
	Backend Backend

	// RTCFrequency is the nominal RTC rate in Hz; the bridge is
	// calibrated for it.
	RTCFrequency uint32

	// RTCDriftPPM is how far the real RTC rate is off nominal.
	RTCDriftPPM int32

	// Calibrate runs an rtc.Calibrator against the system clock.
	Calibrate         bool
	CalibrationWindow time.Duration
}

// DefaultRTCFrequency is the nominal ESP8266 RTC oscillator rate
const DefaultRTCFrequency = 150000

// SleepResult reports what the power controller did
type SleepResult struct {
	Requested uint32 // microseconds returned by PMSleepEnter
	Slept     time.Duration
	Cause     core.WakeupCause
}

// Machine is one simulated chip
type Machine struct {
	cfg Config
	now int64 // virtual nanoseconds since creation

	FRC      *FRC
	SysClock *SysClock
	RTC      *RTC
	RAM      *RetainedRAM

	bridge     *rtc.Counter
	calibrator *rtc.Calibrator
	scheduler  *core.Scheduler
	rtt        *core.RTT
	boots      int
}

// NewMachine powers up a chip from cold and initializes the RTT on it
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendFRC
	}
	if cfg.Backend != BackendFRC && cfg.Backend != BackendSysclk {
		return nil, ErrUnknownBackend
	}
	if cfg.RTCFrequency == 0 {
		cfg.RTCFrequency = DefaultRTCFrequency
	}
	if cfg.CalibrationWindow == 0 {
		cfg.CalibrationWindow = time.Second
	}

	m := &Machine{cfg: cfg}
	m.FRC = newFRC(m)
	m.SysClock = newSysClock(m)
	m.RTC = newRTC(m, cfg.RTCFrequency, cfg.RTCDriftPPM)
	m.RAM = &RetainedRAM{}
	m.RAM.lose()

	m.boot()
	return m, nil
}

// boot resets the volatile hardware and runs the firmware's RTT bring-up
func (m *Machine) boot() {
	m.FRC.reset()
	m.SysClock.reset()

	freq := uint64(m.cfg.RTCFrequency)
	nominal := uint32((uint64(1000000)<<core.CalibrationShift + freq/2) / freq)
	m.bridge = rtc.NewCounter(m.RTC.Counter, nominal)
	retained := core.NewRetained(m.RAM)

	var driver core.CounterDriver
	switch m.cfg.Backend {
	case BackendSysclk:
		m.scheduler = core.NewScheduler(m.SysClock.Micros)
		driver = sysclk.New(sysclk.ClockFunc(m.SysClock.Micros), m.scheduler, m.bridge, retained)
	default:
		m.scheduler = nil
		driver = frc.New(m.FRC, m.bridge, retained)
	}

	m.rtt = core.New(driver, m.bridge, retained)
	m.calibrator = nil
	if m.cfg.Calibrate {
		m.calibrator = rtc.NewCalibrator(m.bridge, m.SysClock.Micros)
		m.calibrator.Window = uint32(m.cfg.CalibrationWindow / time.Microsecond)
	}

	m.rtt.Init()
	m.boots++
}

// RTT returns the RTT of the current boot
func (m *Machine) RTT() *core.RTT {
	return m.rtt
}

// Bridge returns the RTC bridge of the current boot
func (m *Machine) Bridge() *rtc.Counter {
	return m.bridge
}

// Now returns the virtual time since the machine was created
func (m *Machine) Now() time.Duration {
	return time.Duration(m.now)
}

// Boots returns how many times the firmware has started
func (m *Machine) Boots() int {
	return m.boots
}

// Advance runs the awake chip for d, delivering timer events in order
func (m *Machine) Advance(d time.Duration) {
	target := m.now + int64(d)
	for {
		next, source := m.nextEvent()
		if source == sourceNone || next > target {
			next, source = target, sourceNone
		}
		if m.scheduler != nil && next-m.now > schedulerSampleNS {
			// The scheduler extends a 32-bit clock and must see every wrap
			m.now += schedulerSampleNS
			m.scheduler.Now()
			continue
		}
		m.now = next
		if source == sourceNone {
			break
		}
		m.fire(source)
		m.poll()
	}
	m.poll()
}

// schedulerSampleNS is the longest the sim runs without sampling the
// scheduler clock: half its wrap period
const schedulerSampleNS = int64(1<<31) * 1000

// AdvanceUS runs the awake chip for us microseconds
func (m *Machine) AdvanceUS(us uint32) {
	m.Advance(time.Duration(us) * time.Microsecond)
}

// Sleep puts the chip into mode for at most max. A timer wake happens when
// the RTT reports an armed event within max; otherwise an external source
// wakes the chip after max. Modem sleep keeps the timers running and needs
// no hooks. Waking from deep sleep is a reboot.
func (m *Machine) Sleep(mode core.SleepMode, max time.Duration) SleepResult {
	if mode == core.SleepModem {
		m.Advance(max)
		return SleepResult{Slept: max, Cause: core.WakeupUndefined}
	}

	result := SleepResult{Slept: max, Cause: core.WakeupGPIO}
	result.Requested = m.rtt.PMSleepEnter(mode)
	if result.Requested != 0 {
		wake := time.Duration(result.Requested) * time.Microsecond
		if wake <= max {
			result.Slept = wake
			result.Cause = core.WakeupTimer
		}
	}

	if mode == core.SleepDeep {
		m.now += int64(result.Slept)
		m.boot()
		return result
	}

	m.FRC.freeze(true)
	m.SysClock.freeze(true)
	m.now += int64(result.Slept)
	m.FRC.freeze(false)
	m.SysClock.freeze(false)

	if m.calibrator != nil {
		m.calibrator.Reset()
	}
	m.rtt.PMSleepExit(result.Cause)
	return result
}

// Reboot performs a software reset that takes downtime to come back
func (m *Machine) Reboot(downtime time.Duration) {
	m.rtt.PrepareReboot()
	m.now += int64(downtime)
	m.boot()
}

// PowerLoss removes all power for downtime. Retained memory and the RTC
// are lost.
func (m *Machine) PowerLoss(downtime time.Duration) {
	m.now += int64(downtime)
	m.RAM.lose()
	m.RTC.reset()
	m.boot()
}

type eventSource uint8

const (
	sourceNone eventSource = iota
	sourceFRC
	sourceScheduler
)

// nextEvent returns the earliest pending hardware or software timer event
func (m *Machine) nextEvent() (int64, eventSource) {
	next, source := int64(0), sourceNone
	if at, ok := m.FRC.nextEvent(); ok {
		next, source = at, sourceFRC
	}

	if m.scheduler != nil {
		if deadline, pending := m.scheduler.Next(); pending {
			now := m.scheduler.Now()
			var wait uint64
			if deadline > now {
				wait = deadline - now
			}
			if delay, running := m.SysClock.untilMicros(wait); running {
				at := m.now + delay
				if source == sourceNone || at < next {
					next, source = at, sourceScheduler
				}
			}
		}
	}
	return next, source
}

func (m *Machine) fire(source eventSource) {
	switch source {
	case sourceFRC:
		m.FRC.fire()
	case sourceScheduler:
		m.scheduler.Dispatch()
	}
}

// poll is the firmware main loop body
func (m *Machine) poll() {
	if m.calibrator != nil {
		m.calibrator.Update()
	}
}
