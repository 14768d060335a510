//go:build esp8266

package frc

import (
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"
)

// FRC2 register block
const (
	frc2Base  = 0x60000620
	frc2Load  = frc2Base + 0x00
	frc2Count = frc2Base + 0x04
	frc2Ctrl  = frc2Base + 0x08
	frc2Int   = frc2Base + 0x0C
	frc2Alarm = frc2Base + 0x10

	dportIntEnable = 0x3FF00004
	dportIntFRC2   = 1 << 2
)

// Hardware is the FRC2 peripheral.
type Hardware struct {
	load    *volatile.Register32
	count   *volatile.Register32
	ctrl    *volatile.Register32
	intr    *volatile.Register32
	alarm   *volatile.Register32
	dport   *volatile.Register32
	handler func()
}

// NewHardware maps the FRC2 peripheral.
//
// TinyGo does not vector peripheral interrupts on this chip, so the
// compare interrupt is delivered by Poll from the main loop.
func NewHardware() *Hardware {
	return &Hardware{
		load:  (*volatile.Register32)(unsafe.Pointer(uintptr(frc2Load))),
		count: (*volatile.Register32)(unsafe.Pointer(uintptr(frc2Count))),
		ctrl:  (*volatile.Register32)(unsafe.Pointer(uintptr(frc2Ctrl))),
		intr:  (*volatile.Register32)(unsafe.Pointer(uintptr(frc2Int))),
		alarm: (*volatile.Register32)(unsafe.Pointer(uintptr(frc2Alarm))),
		dport: (*volatile.Register32)(unsafe.Pointer(uintptr(dportIntEnable))),
	}
}

func (r *Hardware) Count() uint32         { return r.count.Get() }
func (r *Hardware) SetLoad(value uint32)  { r.load.Set(value) }
func (r *Hardware) SetAlarm(value uint32) { r.alarm.Set(value) }
func (r *Hardware) Ctrl() uint32          { return r.ctrl.Get() }
func (r *Hardware) SetCtrl(value uint32)  { r.ctrl.Set(value) }
func (r *Hardware) ClearInterrupt()       { r.intr.Set(1) }

func (r *Hardware) EnableInterrupt(handler func()) {
	r.handler = handler
	r.dport.SetBits(dportIntFRC2)
}

func (r *Hardware) DisableInterrupt() {
	r.dport.ClearBits(dportIntFRC2)
	r.handler = nil
}

// Poll runs the compare handler when the interrupt status bit is set.
func (r *Hardware) Poll() {
	if r.handler == nil || !r.ctrl.HasBits(CtrlIntrSta) {
		return
	}
	state := interrupt.Disable()
	r.handler()
	interrupt.Restore(state)
}
