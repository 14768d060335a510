package sim

import (
	"vrtt/backend/frc"
)

const frcTickNS = 1000000000 / frc.Frequency // 3.2 us

// FRC models the FRC2 register block. The count advances with virtual
// time while the enable bit is set and the chip is awake; the compare
// interrupt fires when the count reaches the alarm register.
type FRC struct {
	m *Machine

	base   uint32 // count at baseNS
	baseNS int64
	ctrl   uint32
	alarm  uint32
	frozen bool

	handler    func()
	irqEnabled bool

	Interrupts int
}

func newFRC(m *Machine) *FRC {
	return &FRC{m: m, baseNS: m.now}
}

func (f *FRC) running() bool {
	return f.ctrl&frc.CtrlEnable != 0 && !f.frozen
}

// rebase folds the elapsed whole ticks into base, keeping the tick phase
func (f *FRC) rebase() {
	if !f.running() {
		f.baseNS = f.m.now
		return
	}
	ticks := (f.m.now - f.baseNS) / frcTickNS
	f.base += uint32(ticks)
	f.baseNS += ticks * frcTickNS
}

func (f *FRC) Count() uint32 {
	f.rebase()
	return f.base
}

func (f *FRC) SetLoad(value uint32) {
	f.rebase()
	f.base = value
}

func (f *FRC) SetAlarm(value uint32) {
	f.alarm = value
}

// Alarm returns the compare register
func (f *FRC) Alarm() uint32 {
	return f.alarm
}

func (f *FRC) Ctrl() uint32 {
	return f.ctrl
}

func (f *FRC) SetCtrl(value uint32) {
	f.rebase()
	f.ctrl = value&^frc.CtrlIntrSta | f.ctrl&frc.CtrlIntrSta
}

func (f *FRC) ClearInterrupt() {
	f.ctrl &^= frc.CtrlIntrSta
}

func (f *FRC) EnableInterrupt(handler func()) {
	f.handler = handler
	f.irqEnabled = true
}

func (f *FRC) DisableInterrupt() {
	f.irqEnabled = false
}

// freeze stops or resumes the count for light sleep
func (f *FRC) freeze(frozen bool) {
	f.rebase()
	f.frozen = frozen
	f.rebase()
}

// reset returns the block to its power-on state
func (f *FRC) reset() {
	*f = FRC{m: f.m, baseNS: f.m.now, Interrupts: f.Interrupts}
}

// nextEvent returns when the count next reaches the compare value
func (f *FRC) nextEvent() (int64, bool) {
	if !f.running() {
		return 0, false
	}
	f.rebase()
	ticks := uint64(f.alarm - f.base)
	if ticks == 0 {
		ticks = 1 << 32
	}
	return f.baseNS + int64(ticks)*frcTickNS, true
}

// fire raises the compare interrupt
func (f *FRC) fire() {
	f.ctrl |= frc.CtrlIntrSta
	if f.irqEnabled && f.handler != nil {
		f.Interrupts++
		f.handler()
	}
}
