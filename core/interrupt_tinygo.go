//go:build tinygo

package core

import "runtime/interrupt"

// DisableInterrupts masks interrupts and returns the previous state.
// Sections may nest; each RestoreInterrupts undoes exactly one Disable.
func DisableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// RestoreInterrupts restores the interrupt state saved by DisableInterrupts.
func RestoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
