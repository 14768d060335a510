package sim

import (
	"vrtt/core"
)

// RetainedRAM models RTC user memory. It survives deep sleep and warm
// reboot and is lost with power.
type RetainedRAM struct {
	data   [core.RetainedSize]byte
	Writes int
}

func (r *RetainedRAM) ReadRetained(buf []byte) {
	copy(buf, r.data[:])
}

func (r *RetainedRAM) WriteRetained(buf []byte) {
	copy(r.data[:], buf)
	r.Writes++
}

// Bytes returns a copy of the stored record
func (r *RetainedRAM) Bytes() []byte {
	out := make([]byte, len(r.data))
	copy(out, r.data[:])
	return out
}

// lose fills the memory with the pattern left after power-up
func (r *RetainedRAM) lose() {
	for i := range r.data {
		r.data[i] = 0xFF
	}
}
