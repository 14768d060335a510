package sim

import (
	"errors"
	"testing"
	"time"

	"vrtt/core"
)

var backends = []Backend{BackendFRC, BackendSysclk}

func newTestMachine(t *testing.T, cfg Config) *Machine {
	t.Helper()
	m, err := NewMachine(cfg)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	return m
}

func expectNear(t *testing.T, what string, got, want, tolerance uint32) {
	t.Helper()
	diff := int64(got) - int64(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > int64(tolerance) {
		t.Errorf("Expected %s %d +/- %d, got %d", what, want, tolerance, got)
	}
}

type firing struct {
	arg     interface{}
	counter uint32
}

func recordInto(m *Machine, calls *[]firing) core.Callback {
	return func(arg interface{}) {
		*calls = append(*calls, firing{arg: arg, counter: m.RTT().Counter()})
	}
}

func TestNewMachineUnknownBackend(t *testing.T) {
	_, err := NewMachine(Config{Backend: "hpet"})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}

func TestMachineColdBoot(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})

			if m.Boots() != 1 {
				t.Errorf("Expected 1 boot, got %d", m.Boots())
			}
			st := m.RTT().Status()
			if st.Counter != 0 || st.AlarmArmed || st.OverflowEnabled {
				t.Errorf("Unexpected cold boot status %+v", st)
			}

			m.Advance(250 * time.Millisecond)
			expectNear(t, "counter", m.RTT().Counter(), 250000, 4)
		})
	}
}

func TestMachineAlarm(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})
			rtt := m.RTT()

			// Neither value falls on an FRC tick boundary
			var calls []firing
			rtt.SetCounter(1000001)
			rtt.SetAlarm(1005001, recordInto(m, &calls), "x")

			m.Advance(4 * time.Millisecond)
			if len(calls) != 0 {
				t.Fatal("Alarm fired early")
			}
			m.Advance(2 * time.Millisecond)
			if len(calls) != 1 || calls[0].arg != "x" {
				t.Fatalf("Expected one call, got %v", calls)
			}
			if calls[0].counter < 1005001 {
				t.Errorf("Alarm fired at counter %d, before 1005001", calls[0].counter)
			}
			expectNear(t, "counter at fire", calls[0].counter, 1005001, 4)

			if rtt.Alarm() != 1005001 {
				t.Errorf("Expected Alarm to keep 1005001, got %d", rtt.Alarm())
			}
			rtt.ClearAlarm()
			if rtt.Alarm() != 0 {
				t.Errorf("Expected Alarm 0 after clear, got %d", rtt.Alarm())
			}

			m.Advance(time.Second)
			if len(calls) != 1 {
				t.Errorf("Alarm fired again: %v", calls)
			}
		})
	}
}

func TestMachineOverflow(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})
			rtt := m.RTT()

			var wraps []firing
			rtt.SetCounter(0xFFFFF000)
			rtt.SetOverflowCallback(recordInto(m, &wraps), nil)

			m.Advance(10 * time.Millisecond)
			if len(wraps) != 1 {
				t.Fatalf("Expected one overflow, got %d", len(wraps))
			}
			if wraps[0].counter > 4 && wraps[0].counter < 0xFFFFFFFC {
				t.Errorf("Expected overflow at the wrap, counter %d", wraps[0].counter)
			}
			if st := rtt.Status(); !st.OverflowArmed {
				t.Errorf("Expected overflow re-armed, got %+v", st)
			}
		})
	}
}

func TestMachineAlarmBehindWrap(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})
			rtt := m.RTT()

			var wraps, calls []firing
			rtt.SetCounter(0xFFFFFFFF - 1000000)
			rtt.SetOverflowCallback(recordInto(m, &wraps), nil)
			rtt.SetAlarm(500000, recordInto(m, &calls), nil)

			m.Advance(2 * time.Second)
			if len(wraps) != 1 {
				t.Fatalf("Expected one overflow, got %d", len(wraps))
			}
			if wraps[0].counter > 4 {
				t.Errorf("Expected overflow just past the wrap, counter %d", wraps[0].counter)
			}
			if len(calls) != 1 {
				t.Fatalf("Expected the alarm after the wrap, got %d calls", len(calls))
			}
			if calls[0].counter < 500000 {
				t.Errorf("Alarm fired at counter %d, before 500000", calls[0].counter)
			}
			expectNear(t, "counter at fire", calls[0].counter, 500000, 4)

			m.Advance(2 * (1 << 32) * time.Microsecond)
			if len(wraps) != 3 || len(calls) != 1 {
				t.Errorf("Expected 3 overflows and 1 alarm after two more wraps, got %d and %d",
					len(wraps), len(calls))
			}
		})
	}
}

func TestMachineLightSleepTimerWake(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})
			rtt := m.RTT()

			var calls []firing
			rtt.SetCounter(1000000)
			rtt.SetAlarm(1005000, recordInto(m, &calls), nil)

			res := m.Sleep(core.SleepLight, time.Second)
			if res.Cause != core.WakeupTimer {
				t.Fatalf("Expected timer wake, got %v", res.Cause)
			}
			if res.Requested != 5000 || res.Slept != 5*time.Millisecond {
				t.Errorf("Expected a 5 ms sleep, got %+v", res)
			}
			// The RTC may restore the counter a few us short of the alarm
			m.Advance(50 * time.Microsecond)
			if len(calls) != 1 {
				t.Fatalf("Expected the alarm on wake, got %d calls", len(calls))
			}
			if calls[0].counter < 1005000 {
				t.Errorf("Alarm fired at counter %d, before 1005000", calls[0].counter)
			}
			expectNear(t, "counter at fire", calls[0].counter, 1005000, 10)
			if rtt.Status().Wakeup {
				t.Error("Expected wakeup flag cleared")
			}
		})
	}
}

func TestMachineLightSleepAcrossWrap(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})
			rtt := m.RTT()

			var wraps []firing
			rtt.SetCounter(0xFFFFFFFF - 2000000)
			rtt.SetOverflowCallback(recordInto(m, &wraps), nil)

			res := m.Sleep(core.SleepLight, 10*time.Second)
			if res.Cause != core.WakeupTimer {
				t.Fatalf("Expected timer wake, got %v", res.Cause)
			}
			m.Advance(time.Second)

			if len(wraps) != 1 {
				t.Fatalf("Expected one overflow for one wrap, got %d", len(wraps))
			}
			if wraps[0].counter > 50 {
				t.Errorf("Expected overflow at the wrap, counter %d", wraps[0].counter)
			}
			if st := rtt.Status(); !st.OverflowArmed {
				t.Errorf("Expected overflow re-armed, got %+v", st)
			}
		})
	}
}

func TestMachineLightSleepExternalWake(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})
			rtt := m.RTT()

			var calls []firing
			rtt.SetAlarm(5000000, recordInto(m, &calls), nil)

			res := m.Sleep(core.SleepLight, time.Second)
			if res.Cause != core.WakeupGPIO {
				t.Fatalf("Expected external wake, got %v", res.Cause)
			}
			if len(calls) != 0 {
				t.Fatal("Alarm fired on external wake")
			}
			expectNear(t, "counter after wake", rtt.Counter(), 1000000, 50)

			// The alarm stays at its absolute counter value
			m.Advance(3990 * time.Millisecond)
			if len(calls) != 0 {
				t.Fatal("Alarm fired early after sleep")
			}
			m.Advance(20 * time.Millisecond)
			if len(calls) != 1 {
				t.Fatalf("Expected the alarm after wake, got %d calls", len(calls))
			}
			expectNear(t, "counter at fire", calls[0].counter, 5000000, 4)
		})
	}
}

func TestMachineModemSleep(t *testing.T) {
	m := newTestMachine(t, Config{})
	var calls []firing
	m.RTT().SetAlarm(3000, recordInto(m, &calls), nil)

	res := m.Sleep(core.SleepModem, 10*time.Millisecond)
	if res.Cause != core.WakeupUndefined {
		t.Errorf("Expected no wake cause for modem sleep, got %v", res.Cause)
	}
	if len(calls) != 1 {
		t.Errorf("Expected the alarm during modem sleep, got %d calls", len(calls))
	}
	if m.RAM.Writes != 0 {
		t.Errorf("Modem sleep must not save counters, %d writes", m.RAM.Writes)
	}
}

func TestMachineDeepSleep(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})
			rtt := m.RTT()

			var calls []firing
			rtt.SetCounter(1000000)
			rtt.SetAlarm(1005000, recordInto(m, &calls), nil)

			res := m.Sleep(core.SleepDeep, time.Second)
			if res.Cause != core.WakeupTimer {
				t.Fatalf("Expected timer wake, got %v", res.Cause)
			}
			if m.Boots() != 2 {
				t.Fatalf("Expected deep sleep wake to reboot, boots=%d", m.Boots())
			}
			if len(calls) != 0 {
				t.Error("Callbacks do not survive deep sleep")
			}

			st := m.RTT().Status()
			if st.AlarmArmed || st.AlarmPending {
				t.Errorf("Expected a clean alarm state after boot, got %+v", st)
			}
			expectNear(t, "counter after deep sleep", st.Counter, 1005000, 10)
		})
	}
}

func TestMachineRebootNeverGoesBackward(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})

			m.RTT().SetCounter(1000000)
			m.Advance(2 * time.Second)
			before := m.RTT().Counter()

			m.Reboot(300 * time.Millisecond)
			after := m.RTT().Counter()

			if after < before {
				t.Fatalf("Counter went backward: %d -> %d", before, after)
			}
			expectNear(t, "counter after reboot", after, before+300000, 20)

			// Second reboot stacks on the first
			m.Advance(time.Second)
			m.Reboot(time.Second)
			expectNear(t, "counter after second reboot", m.RTT().Counter(), before+2300000, 40)
		})
	}
}

func TestMachinePowerLoss(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			m := newTestMachine(t, Config{Backend: backend})

			m.RTT().SetCounter(123456789)
			m.Advance(time.Second)
			m.PowerLoss(10 * time.Second)

			if c := m.RTT().Counter(); c > 10 {
				t.Errorf("Expected the counter restarted from zero, got %d", c)
			}
			if m.Boots() != 2 {
				t.Errorf("Expected 2 boots, got %d", m.Boots())
			}
		})
	}
}

func TestMachineCalibration(t *testing.T) {
	const sleep = 10 * time.Second

	tests := []struct {
		name      string
		calibrate bool
		minErr    uint32
		maxErr    uint32
	}{
		{"nominal factor", false, 150000, 250000},
		{"calibrated", true, 0, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(t, Config{
				Backend:     BackendSysclk,
				RTCDriftPPM: -20000, // 2% slow: ticks look longer than nominal
				Calibrate:   tt.calibrate,
			})
			for i := 0; i < 4; i++ {
				m.Advance(time.Second)
			}

			m.RTT().SetCounter(0)
			res := m.Sleep(core.SleepLight, sleep)
			if res.Cause != core.WakeupGPIO || res.Slept != sleep {
				t.Fatalf("Unexpected sleep %+v", res)
			}

			got := m.RTT().Counter()
			want := uint32(sleep / time.Microsecond)
			var errUS uint32
			if got > want {
				errUS = got - want
			} else {
				errUS = want - got
			}
			if errUS < tt.minErr || errUS > tt.maxErr {
				t.Errorf("Expected bridging error in [%d, %d] us, got %d (counter %d)",
					tt.minErr, tt.maxErr, errUS, got)
			}
		})
	}
}

func TestMachineRetainedRecord(t *testing.T) {
	m := newTestMachine(t, Config{})
	m.RTT().SetCounter(42)
	m.RTT().SaveCounter()

	state, err := core.DecodeRetained(m.RAM.Bytes())
	if err != nil {
		t.Fatalf("Expected a valid record after save: %v", err)
	}
	if state.Offset != 42 {
		t.Errorf("Expected offset 42 in the record, got %d", state.Offset)
	}
}
