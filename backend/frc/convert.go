package frc

// FRC2 runs from the 80 MHz bus clock divided by 256
const (
	BusClock  = 80000000
	Frequency = BusClock >> 8 // 312.5 kHz
)

// Overflow is the tick count corresponding to 2^32 microseconds. The
// counter is reloaded to wrap here, so the microsecond value derived from
// it wraps at 2^32 like the virtual counter.
const Overflow = (1 << 32) * Frequency / 1000000

// usToCount converts microseconds to FRC ticks
func usToCount(us uint64) uint32 {
	return uint32(us * Frequency / 1000000)
}

// usToCompare converts microseconds to the first FRC tick whose
// microsecond reading is not below us
func usToCompare(us uint64) uint32 {
	return uint32((us*Frequency + 999999) / 1000000)
}

// countToUS converts FRC ticks to microseconds
func countToUS(count uint32) uint32 {
	return uint32(uint64(count) * 1000000 / Frequency)
}
