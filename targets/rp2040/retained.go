//go:build rp2040

package main

import (
	"encoding/binary"
	"runtime/volatile"
	"unsafe"

	"vrtt/core"
)

// Watchdog scratch registers keep their value through a watchdog reset.
// SCRATCH4-7 belong to the boot ROM, so the record uses SCRATCH0-3.
const (
	watchdogBase    = 0x40058000
	watchdogScratch = watchdogBase + 0x0C

	retainedWords = core.RetainedSize / 4
)

// scratchMemory keeps the retained record in the watchdog scratch
// registers
type scratchMemory struct{}

func (scratchMemory) ReadRetained(buf []byte) {
	for i := 0; i < retainedWords; i++ {
		binary.LittleEndian.PutUint32(buf[4*i:], scratch(i).Get())
	}
}

func (scratchMemory) WriteRetained(buf []byte) {
	for i := 0; i < retainedWords; i++ {
		scratch(i).Set(binary.LittleEndian.Uint32(buf[4*i:]))
	}
}

func scratch(i int) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(watchdogScratch + 4*i)))
}
