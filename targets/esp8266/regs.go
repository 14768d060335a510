//go:build esp8266

package main

import (
	"encoding/binary"
	"runtime/volatile"
	"unsafe"

	"vrtt/core"
)

const (
	// RTC slow counter, clocked by the ~150 kHz RC oscillator. It keeps
	// running through deep sleep and reset.
	rtcCounterAddr = 0x6000071C

	// RTC user memory, word access only. Survives deep sleep and a warm
	// reset.
	rtcUserMemoryAddr = 0x60001100

	// WDEV timer, the 1 MHz counter behind the system time
	wdevCountAddr = 0x3FF20C00

	retainedWords = core.RetainedSize / 4
)

var (
	rtcCounter = (*volatile.Register32)(unsafe.Pointer(uintptr(rtcCounterAddr)))
	wdevCount  = (*volatile.Register32)(unsafe.Pointer(uintptr(wdevCountAddr)))
)

// wdevNow returns the system time in microseconds
func wdevNow() uint32 {
	return wdevCount.Get()
}

// rtcMemory keeps the retained record in RTC user memory
type rtcMemory struct{}

func (rtcMemory) ReadRetained(buf []byte) {
	for i := 0; i < retainedWords; i++ {
		binary.LittleEndian.PutUint32(buf[4*i:], rtcWord(i).Get())
	}
}

func (rtcMemory) WriteRetained(buf []byte) {
	for i := 0; i < retainedWords; i++ {
		rtcWord(i).Set(binary.LittleEndian.Uint32(buf[4*i:]))
	}
}

func rtcWord(i int) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(rtcUserMemoryAddr + 4*i)))
}
