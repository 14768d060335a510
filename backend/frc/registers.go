package frc

// Control register bits
const (
	CtrlIntrHold  = 1 << 0
	CtrlClkDivPos = 2
	CtrlClkDiv    = 3 << CtrlClkDivPos
	CtrlReload    = 1 << 6
	CtrlEnable    = 1 << 7
	CtrlIntrSta   = 1 << 8

	ClkDiv256 = 2 // clk_div field value for bus clock / 256
)

// Registers is the FRC2 register block. Targets map it onto the
// peripheral; the sim package models it on the host.
type Registers interface {
	// Count returns the current tick count.
	Count() uint32

	// SetLoad writes the load register, which sets the count.
	SetLoad(value uint32)

	// SetAlarm programs the compare register.
	SetAlarm(value uint32)

	Ctrl() uint32
	SetCtrl(value uint32)

	// ClearInterrupt acknowledges a pending compare interrupt.
	ClearInterrupt()

	// EnableInterrupt routes the compare interrupt to handler.
	EnableInterrupt(handler func())

	// DisableInterrupt masks the compare interrupt.
	DisableInterrupt()
}
