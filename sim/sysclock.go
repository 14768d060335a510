package sim

// SysClock models the system microsecond clock. It restarts at zero on
// every boot and stops in light sleep.
type SysClock struct {
	m      *Machine
	runNS  int64
	lastNS int64
	frozen bool
}

func newSysClock(m *Machine) *SysClock {
	return &SysClock{m: m, lastNS: m.now}
}

func (c *SysClock) sync() {
	if !c.frozen {
		c.runNS += c.m.now - c.lastNS
	}
	c.lastNS = c.m.now
}

// Micros returns the clock in microseconds
func (c *SysClock) Micros() uint32 {
	c.sync()
	return uint32(c.runNS / 1000)
}

func (c *SysClock) freeze(frozen bool) {
	c.sync()
	c.frozen = frozen
}

func (c *SysClock) reset() {
	c.runNS = 0
	c.lastNS = c.m.now
	c.frozen = false
}

// untilMicros returns the virtual nanoseconds until the clock has advanced
// by us microseconds
func (c *SysClock) untilMicros(us uint64) (int64, bool) {
	c.sync()
	if c.frozen {
		return 0, false
	}
	if us == 0 {
		return 0, true
	}
	return int64(us)*1000 - c.runNS%1000, true
}
