package sim

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vrtt/core"
)

// Scenario is a scripted run of the RTT on a simulated chip
type Scenario struct {
	Name    string      `yaml:"name"`
	Backend Backend     `yaml:"backend"`
	RTC     RTCScenario `yaml:"rtc"`
	Steps   []Step      `yaml:"steps"`
}

// ---- RTC ----

type RTCScenario struct {
	FrequencyHz       uint32        `yaml:"frequency_hz"`
	DriftPPM          int32         `yaml:"drift_ppm"`
	Calibrate         bool          `yaml:"calibrate"`
	CalibrationWindow time.Duration `yaml:"calibration_window"`
}

// ---- STEPS ----

// Step holds exactly one action
type Step struct {
	SetCounter    *uint32       `yaml:"set_counter"`
	SetAlarm      *AlarmStep    `yaml:"set_alarm"`
	ClearAlarm    bool          `yaml:"clear_alarm"`
	SetOverflow   string        `yaml:"set_overflow"` // callback name
	ClearOverflow bool          `yaml:"clear_overflow"`
	Advance       time.Duration `yaml:"advance"`
	Sleep         *SleepStep    `yaml:"sleep"`
	Reboot        *DowntimeStep `yaml:"reboot"`
	PowerLoss     *DowntimeStep `yaml:"power_loss"`
	Expect        *Expectation  `yaml:"expect"`
}

type AlarmStep struct {
	Name string `yaml:"name"`

	// At is an absolute counter value; In is relative to the counter.
	At *uint32       `yaml:"at"`
	In time.Duration `yaml:"in"`
}

type SleepStep struct {
	Mode string        `yaml:"mode"` // modem, light, deep
	Max  time.Duration `yaml:"max"`
}

type DowntimeStep struct {
	Downtime time.Duration `yaml:"downtime"`
}

// Expectation is checked against the state at that point of the run
type Expectation struct {
	// Fired lists the callbacks fired since the previous expectation, in
	// order.
	Fired []string `yaml:"fired"`

	Counter *Range  `yaml:"counter"`
	Alarm   *uint32 `yaml:"alarm"`
	Armed   *bool   `yaml:"armed"`
	Wake    string  `yaml:"wake"` // cause of the last sleep
}

type Range struct {
	Min uint32 `yaml:"min"`
	Max uint32 `yaml:"max"`
}

// Event is a callback invocation observed during a run
type Event struct {
	Name    string
	At      time.Duration
	Counter uint32
	Boot    int
}

// Result is the trace of a completed run
type Result struct {
	Events []Event
	Final  core.Status
	Boots  int
}

// LoadScenario reads a scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a YAML scenario
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &s, nil
}

// Validate checks the scenario without running it.
// It MUST NOT mutate the scenario.
func (s *Scenario) Validate() error {
	switch s.Backend {
	case "", BackendFRC, BackendSysclk:
	default:
		return fmt.Errorf("scenario %q: backend %q: %w", s.Name, s.Backend, ErrUnknownBackend)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q: no steps", s.Name)
	}

	for i, step := range s.Steps {
		if n := step.actions(); n != 1 {
			return fmt.Errorf("scenario %q: step %d: has %d actions, want exactly 1", s.Name, i, n)
		}
		if step.Advance < 0 {
			return fmt.Errorf("scenario %q: step %d: negative advance", s.Name, i)
		}
		if a := step.SetAlarm; a != nil {
			if a.Name == "" {
				return fmt.Errorf("scenario %q: step %d: set_alarm needs a name", s.Name, i)
			}
			if (a.At == nil) == (a.In == 0) {
				return fmt.Errorf("scenario %q: step %d: set_alarm needs exactly one of at, in", s.Name, i)
			}
		}
		if sl := step.Sleep; sl != nil {
			if _, err := parseSleepMode(sl.Mode); err != nil {
				return fmt.Errorf("scenario %q: step %d: %w", s.Name, i, err)
			}
		}
		if e := step.Expect; e != nil && e.Counter != nil && e.Counter.Min > e.Counter.Max {
			return fmt.Errorf("scenario %q: step %d: counter range min > max", s.Name, i)
		}
	}
	return nil
}

func (st Step) actions() int {
	n := 0
	for _, set := range []bool{
		st.SetCounter != nil,
		st.SetAlarm != nil,
		st.ClearAlarm,
		st.SetOverflow != "",
		st.ClearOverflow,
		st.Advance > 0,
		st.Sleep != nil,
		st.Reboot != nil,
		st.PowerLoss != nil,
		st.Expect != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func parseSleepMode(mode string) (core.SleepMode, error) {
	switch mode {
	case "modem":
		return core.SleepModem, nil
	case "light", "":
		return core.SleepLight, nil
	case "deep":
		return core.SleepDeep, nil
	default:
		return 0, fmt.Errorf("unknown sleep mode %q", mode)
	}
}

// Run validates and executes the scenario on a fresh machine. It stops at
// the first failed expectation.
func (s *Scenario) Run() (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	m, err := NewMachine(Config{
		Backend:           s.Backend,
		RTCFrequency:      s.RTC.FrequencyHz,
		RTCDriftPPM:       s.RTC.DriftPPM,
		Calibrate:         s.RTC.Calibrate,
		CalibrationWindow: s.RTC.CalibrationWindow,
	})
	if err != nil {
		return nil, err
	}

	r := &runner{m: m}
	for i, step := range s.Steps {
		if err := r.step(step); err != nil {
			return r.result(), fmt.Errorf("scenario %q: step %d: %w", s.Name, i, err)
		}
	}
	return r.result(), nil
}

type runner struct {
	m         *Machine
	events    []Event
	checked   int
	lastSleep *SleepResult
}

func (r *runner) result() *Result {
	return &Result{
		Events: r.events,
		Final:  r.m.RTT().Status(),
		Boots:  r.m.Boots(),
	}
}

// callback records an invocation under name
func (r *runner) callback(name string) core.Callback {
	return func(_ interface{}) {
		r.events = append(r.events, Event{
			Name:    name,
			At:      r.m.Now(),
			Counter: r.m.RTT().Counter(),
			Boot:    r.m.Boots(),
		})
	}
}

func (r *runner) step(st Step) error {
	rtt := r.m.RTT()

	switch {
	case st.SetCounter != nil:
		rtt.SetCounter(*st.SetCounter)
	case st.SetAlarm != nil:
		at := rtt.Counter() + uint32(st.SetAlarm.In/time.Microsecond)
		if st.SetAlarm.At != nil {
			at = *st.SetAlarm.At
		}
		rtt.SetAlarm(at, r.callback(st.SetAlarm.Name), nil)
	case st.ClearAlarm:
		rtt.ClearAlarm()
	case st.SetOverflow != "":
		rtt.SetOverflowCallback(r.callback(st.SetOverflow), nil)
	case st.ClearOverflow:
		rtt.ClearOverflowCallback()
	case st.Advance > 0:
		r.m.Advance(st.Advance)
	case st.Sleep != nil:
		mode, _ := parseSleepMode(st.Sleep.Mode)
		res := r.m.Sleep(mode, st.Sleep.Max)
		r.lastSleep = &res
	case st.Reboot != nil:
		r.m.Reboot(st.Reboot.Downtime)
	case st.PowerLoss != nil:
		r.m.PowerLoss(st.PowerLoss.Downtime)
	case st.Expect != nil:
		return r.check(st.Expect)
	}
	return nil
}

func (r *runner) check(e *Expectation) error {
	fired := r.events[r.checked:]
	r.checked = len(r.events)

	if e.Fired != nil {
		if len(fired) != len(e.Fired) {
			return fmt.Errorf("fired %v, want %v", eventNames(fired), e.Fired)
		}
		for i, name := range e.Fired {
			if fired[i].Name != name {
				return fmt.Errorf("fired %v, want %v", eventNames(fired), e.Fired)
			}
		}
	}

	status := r.m.RTT().Status()
	if c := e.Counter; c != nil && (status.Counter < c.Min || status.Counter > c.Max) {
		return fmt.Errorf("counter %d outside [%d, %d]", status.Counter, c.Min, c.Max)
	}
	if e.Alarm != nil && status.Alarm != *e.Alarm {
		return fmt.Errorf("alarm %d, want %d", status.Alarm, *e.Alarm)
	}
	if e.Armed != nil && status.AlarmArmed != *e.Armed {
		return fmt.Errorf("armed %v, want %v", status.AlarmArmed, *e.Armed)
	}
	if e.Wake != "" {
		if r.lastSleep == nil {
			return fmt.Errorf("wake %q expected but the chip never slept", e.Wake)
		}
		if got := r.lastSleep.Cause.String(); got != e.Wake {
			return fmt.Errorf("wake cause %q, want %q", got, e.Wake)
		}
	}
	return nil
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}
