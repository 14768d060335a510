//go:build !tinygo

package core

// State is a placeholder for the saved interrupt state on regular Go.
type State uintptr

// DisableInterrupts is a no-op on regular Go. Host builds run every
// interrupt handler synchronously from the simulated hardware.
func DisableInterrupts() State {
	return 0
}

// RestoreInterrupts is a no-op on regular Go.
func RestoreInterrupts(state State) {}
