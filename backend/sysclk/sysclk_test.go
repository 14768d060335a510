package sysclk

import (
	"testing"

	"vrtt/core"
)

type testClock struct {
	now uint32
}

func (c *testClock) Micros() uint32 { return c.now }

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

type testBench struct {
	d         *Driver
	clock     *testClock
	rtc       *fakeRTC
	scheduler *core.Scheduler
	retained  *core.Retained
}

func newBench(start uint32) *testBench {
	clock := &testClock{now: start}
	rtc := &fakeRTC{}
	scheduler := core.NewScheduler(clock.Micros)
	retained := core.NewRetained(&memStore{})
	return &testBench{
		d:         New(clock, scheduler, rtc, retained),
		clock:     clock,
		rtc:       rtc,
		scheduler: scheduler,
		retained:  retained,
	}
}

// run advances the clock and the RTC together, dispatching due timers
func (b *testBench) run(us uint32) {
	b.clock.now += us
	b.rtc.ticks += us
	b.scheduler.Dispatch()
}

func TestNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic without a scheduler")
		}
	}()
	New(&testClock{}, nil, &fakeRTC{}, core.NewRetained(&memStore{}))
}

func TestClockFunc(t *testing.T) {
	var c Clock = ClockFunc(func() uint32 { return 42 })
	if c.Micros() != 42 {
		t.Errorf("Expected 42, got %d", c.Micros())
	}
}

func TestAlarmFiresAtDistance(t *testing.T) {
	b := newBench(1000)

	var got []interface{}
	b.d.SetAlarm(6000, func(arg interface{}) { got = append(got, arg) }, 7)

	b.run(4999)
	if len(got) != 0 {
		t.Fatal("Alarm fired early")
	}
	b.run(1)
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("Expected one call with arg 7, got %v", got)
	}
	b.run(100000)
	if len(got) != 1 {
		t.Error("One-shot alarm fired twice")
	}
}

func TestAlarmBehindWaitsForWrap(t *testing.T) {
	b := newBench(0x100)

	fired := false
	b.d.SetAlarm(0x80, func(interface{}) { fired = true }, nil)

	deadline, ok := b.scheduler.Next()
	if !ok {
		t.Fatal("Expected a pending timer")
	}
	if want := uint64(0x100) + uint64(0xFFFFFF80); deadline != want {
		t.Errorf("Expected deadline %#x, got %#x", want, deadline)
	}
	b.run(1000)
	if fired {
		t.Error("Alarm behind the counter fired immediately")
	}
}

func TestClearAlarm(t *testing.T) {
	b := newBench(0)

	fired := false
	b.d.SetAlarm(100, func(interface{}) { fired = true }, nil)
	b.d.ClearAlarm()
	b.d.ClearAlarm()

	b.run(1000)
	if fired {
		t.Error("Cleared alarm fired")
	}
	if _, ok := b.scheduler.Next(); ok {
		t.Error("Expected no pending timer")
	}
}

func TestPowerOffCancels(t *testing.T) {
	b := newBench(0)

	fired := false
	b.d.SetAlarm(100, func(interface{}) { fired = true }, nil)
	b.d.PowerOff()

	b.run(1000)
	if fired {
		t.Error("Alarm fired after PowerOff")
	}
}

func TestRestoreAfterSleep(t *testing.T) {
	b := newBench(500)
	b.rtc.ticks = 9000

	b.d.SaveCounter()
	if b.retained.State.ActiveCounter != 500 || b.retained.State.RTCCounter != 9000 {
		t.Fatalf("Unexpected snapshot %+v", b.retained.State)
	}

	// The system clock stops in light sleep, the RTC does not
	b.rtc.ticks += 250000
	b.d.RestoreCounter(false)

	if c := b.d.Counter(); c != 250500 {
		t.Errorf("Expected counter 250500, got %d", c)
	}
}

func TestRestoreAfterReboot(t *testing.T) {
	store := &memStore{}
	before := newBench(0)
	before.retained = core.NewRetained(store)
	before.d = New(before.clock, before.scheduler, before.rtc, before.retained)

	before.run(777000)
	before.d.SaveCounter()
	before.retained.Persist()

	// The new boot starts its clock from zero
	retained := core.NewRetained(store)
	if !retained.Load() {
		t.Fatal("Expected the record to survive")
	}
	clock := &testClock{}
	rtc := &fakeRTC{ticks: before.rtc.ticks + 3000}
	d := New(clock, core.NewScheduler(clock.Micros), rtc, retained)
	d.RestoreCounter(true)

	if c := d.Counter(); c != 780000 {
		t.Errorf("Expected counter 780000, got %d", c)
	}
}

func TestAlarmAtCounterIsFullWrap(t *testing.T) {
	b := newBench(5000)

	fired := false
	b.d.SetAlarm(5000, func(interface{}) { fired = true }, nil)
	b.scheduler.Dispatch()
	if fired {
		t.Fatal("Alarm equal to the counter fired immediately")
	}

	deadline, _ := b.scheduler.Next()
	if want := uint64(5000) + 1<<32; deadline != want {
		t.Errorf("Expected deadline %#x, got %#x", want, deadline)
	}
}
