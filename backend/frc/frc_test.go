package frc

import (
	"testing"

	"vrtt/core"
)

// fakeRegs is an FRC2 register block whose count only moves when the
// test sets it
type fakeRegs struct {
	count   uint32
	alarm   uint32
	ctrl    uint32
	handler func()
	acks    int
}

func (r *fakeRegs) Count() uint32            { return r.count }
func (r *fakeRegs) SetLoad(value uint32)     { r.count = value }
func (r *fakeRegs) SetAlarm(value uint32)    { r.alarm = value }
func (r *fakeRegs) Ctrl() uint32             { return r.ctrl }
func (r *fakeRegs) SetCtrl(value uint32)     { r.ctrl = value }
func (r *fakeRegs) ClearInterrupt()          { r.acks++ }
func (r *fakeRegs) EnableInterrupt(h func()) { r.handler = h }
func (r *fakeRegs) DisableInterrupt()        { r.handler = nil }

// fire moves the count to the compare value and raises the interrupt
func (r *fakeRegs) fire() {
	r.count = r.alarm
	if r.handler != nil {
		r.handler()
	}
}

type fakeRTC struct {
	ticks uint32
}

func (r *fakeRTC) Counter() uint32     { return r.ticks }
func (r *fakeRTC) Calibration() uint32 { return 1 << core.CalibrationShift }

type memStore struct {
	data [core.RetainedSize]byte
}

func (m *memStore) ReadRetained(buf []byte)  { copy(buf, m.data[:]) }
func (m *memStore) WriteRetained(buf []byte) { copy(m.data[:], buf) }

func newTestDriver() (*Driver, *fakeRegs, *fakeRTC) {
	regs := &fakeRegs{}
	rtc := &fakeRTC{}
	d := New(regs, rtc, core.NewRetained(&memStore{}))
	d.Init()
	d.PowerOn()
	return d, regs, rtc
}

func TestConversions(t *testing.T) {
	if Overflow != 1342177280 {
		t.Fatalf("Expected Overflow 1342177280, got %d", uint64(Overflow))
	}
	if got := countToUS(Overflow - 1); got != 0xFFFFFFFC {
		t.Errorf("Expected last count before overflow at 0xFFFFFFFC us, got %#x", got)
	}

	tests := []struct {
		us    uint64
		count uint32
	}{
		{0, 0},
		{1000000, 312500},
		{1005000, 314062},
		{16, 5},
	}
	for _, tt := range tests {
		if got := usToCount(tt.us); got != tt.count {
			t.Errorf("usToCount(%d) = %d, want %d", tt.us, got, tt.count)
		}
	}
}

func TestCompareNeverEarly(t *testing.T) {
	for _, us := range []uint64{1, 3, 16, 1005001, 4294967290} {
		compare := usToCompare(us)
		if got := countToUS(compare); uint64(got) < us {
			t.Errorf("Compare for %d us reads %d us", us, got)
		}
		if got := countToUS(compare - 1); uint64(got) >= us {
			t.Errorf("Compare for %d us is a tick late: %d us one tick earlier", us, got)
		}
	}
	if usToCompare(0xFFFFFFFF)%Overflow != 0 {
		t.Errorf("Expected the last microsecond to round up to the wrap, got %d", usToCompare(0xFFFFFFFF))
	}
}

func TestNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic without registers")
		}
	}()
	New(nil, &fakeRTC{}, core.NewRetained(&memStore{}))
}

func TestInitPower(t *testing.T) {
	d, regs, _ := newTestDriver()

	if regs.ctrl&CtrlClkDiv != ClkDiv256<<CtrlClkDivPos {
		t.Errorf("Expected divider 256, ctrl=%#x", regs.ctrl)
	}
	if regs.ctrl&CtrlEnable == 0 {
		t.Error("Expected counter enabled")
	}
	if regs.alarm != Overflow {
		t.Errorf("Expected overflow compare after init, got %d", regs.alarm)
	}
	if regs.handler == nil {
		t.Error("Expected interrupt handler installed")
	}

	d.PowerOff()
	if regs.ctrl&CtrlEnable != 0 || regs.handler != nil {
		t.Error("Expected counter stopped and interrupt masked")
	}
}

func TestSetAlarmProgramsCompare(t *testing.T) {
	tests := []struct {
		name    string
		count   uint32
		alarmUS uint32
		compare uint32
	}{
		{"ahead", 312500, 1005000, 314063},
		{"behind arms overflow", 314062, 1000000, Overflow},
		{"equal arms overflow", 314063, 1005000, Overflow},
		{"inside the last tick", 314062, 1005000, 314063},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, regs, _ := newTestDriver()
			regs.count = tt.count

			d.SetAlarm(tt.alarmUS, func(interface{}) {}, nil)
			if regs.alarm != tt.compare {
				t.Errorf("Expected compare %d, got %d", tt.compare, regs.alarm)
			}
		})
	}
}

func TestAlarmInterrupt(t *testing.T) {
	d, regs, _ := newTestDriver()
	regs.count = 312500

	var got []interface{}
	d.SetAlarm(1005000, func(arg interface{}) { got = append(got, arg) }, "a")

	regs.fire()
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("Expected one callback with arg, got %v", got)
	}
	if regs.acks != 1 {
		t.Errorf("Expected the interrupt acknowledged once, got %d", regs.acks)
	}
	if regs.alarm != Overflow {
		t.Errorf("Expected overflow re-armed after the alarm, got %d", regs.alarm)
	}

	// The next compare is the overflow, which must not repeat the alarm
	regs.fire()
	if len(got) != 1 {
		t.Errorf("Alarm fired again on overflow: %v", got)
	}
	if regs.count != 0 {
		t.Errorf("Expected the count reloaded to 0 at overflow, got %d", regs.count)
	}
}

func TestClearedAlarmDoesNotFire(t *testing.T) {
	d, regs, _ := newTestDriver()

	fired := false
	d.SetAlarm(1000, func(interface{}) { fired = true }, nil)
	d.ClearAlarm()

	regs.fire()
	if fired {
		t.Error("Cleared alarm fired")
	}
	if regs.alarm != Overflow {
		t.Errorf("Expected overflow compare, got %d", regs.alarm)
	}
}

func TestCallbackMayRearm(t *testing.T) {
	d, regs, _ := newTestDriver()

	calls := 0
	var cb core.Callback
	cb = func(interface{}) {
		calls++
		if calls == 1 {
			d.SetAlarm(2000, cb, nil)
		}
	}
	d.SetAlarm(1000, cb, nil)

	regs.fire()
	if regs.alarm != usToCompare(2000) {
		t.Fatalf("Expected compare for the re-armed alarm, got %d", regs.alarm)
	}
	regs.fire()
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestSaveRestore(t *testing.T) {
	d, regs, rtc := newTestDriver()
	regs.count = 1000
	rtc.ticks = 0xFFFFFF00

	d.SaveCounter()
	if d.retained.State.ActiveCounter != 1000 || d.retained.State.RTCCounter != 0xFFFFFF00 {
		t.Fatalf("Unexpected snapshot %+v", d.retained.State)
	}

	// Counter stopped in sleep; one second passes on the RTC, across its wrap
	regs.count = 0
	rtc.ticks += 1000000

	d.RestoreCounter(false)
	if regs.count != 1000+312500 {
		t.Errorf("Expected count %d after restore, got %d", 1000+312500, regs.count)
	}
}

func TestRestoreWrapsAtOverflow(t *testing.T) {
	d, regs, rtc := newTestDriver()
	regs.count = Overflow - 10

	d.SaveCounter()
	rtc.ticks += 64 // 20 ticks

	d.RestoreCounter(true)
	if regs.count != 10 {
		t.Errorf("Expected count 10 after wrapping, got %d", regs.count)
	}
}
