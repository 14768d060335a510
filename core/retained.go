package core

import (
	"encoding/binary"
	"errors"

	"vrtt/protocol"
)

// Retained record layout (little endian):
//
//	[0:4]   RTC counter at the last save
//	[4:8]   active counter at the last save (backend specific)
//	[8:12]  virtual counter offset
//	[12:14] magic
//	[14:16] CRC16 over [0:14]
const (
	RetainedSize  = 16
	retainedMagic = 0x5254
)

// ErrRetainedInvalid is returned when the retained record does not carry
// a valid magic and checksum, which happens after a full power loss.
var ErrRetainedInvalid = errors.New("retained record invalid")

// RetainedState holds the counter snapshots that survive deep sleep and
// warm reboot.
type RetainedState struct {
	RTCCounter    uint32
	ActiveCounter uint32
	Offset        uint32
}

// RetainedStore is memory that keeps its contents through the deepest
// sleep mode and a warm reboot (RTC memory, watchdog scratch registers).
type RetainedStore interface {
	// ReadRetained fills buf from retained memory.
	ReadRetained(buf []byte)

	// WriteRetained stores buf in retained memory.
	WriteRetained(buf []byte)
}

// Encode writes the record into buf, which must hold RetainedSize bytes.
func (s RetainedState) Encode(buf []byte) {
	if len(buf) < RetainedSize {
		panic("retained buffer too small")
	}
	binary.LittleEndian.PutUint32(buf[0:4], s.RTCCounter)
	binary.LittleEndian.PutUint32(buf[4:8], s.ActiveCounter)
	binary.LittleEndian.PutUint32(buf[8:12], s.Offset)
	binary.LittleEndian.PutUint16(buf[12:14], retainedMagic)
	binary.LittleEndian.PutUint16(buf[14:16], protocol.CRC16(buf[:14]))
}

// DecodeRetained parses a record written by Encode.
func DecodeRetained(buf []byte) (RetainedState, error) {
	if len(buf) < RetainedSize {
		return RetainedState{}, ErrRetainedInvalid
	}
	if binary.LittleEndian.Uint16(buf[12:14]) != retainedMagic {
		return RetainedState{}, ErrRetainedInvalid
	}
	if binary.LittleEndian.Uint16(buf[14:16]) != protocol.CRC16(buf[:14]) {
		return RetainedState{}, ErrRetainedInvalid
	}
	return RetainedState{
		RTCCounter:    binary.LittleEndian.Uint32(buf[0:4]),
		ActiveCounter: binary.LittleEndian.Uint32(buf[4:8]),
		Offset:        binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// Retained is the working copy of the retained record shared by the RTT
// core and its counter driver. Drivers fill in the snapshots on save and
// read them on restore; the core persists and loads the record.
type Retained struct {
	State RetainedState

	store RetainedStore
	buf   [RetainedSize]byte
}

// NewRetained creates a retained record backed by store.
func NewRetained(store RetainedStore) *Retained {
	return &Retained{store: store}
}

// Load reads the record from the store. It returns false and leaves a
// zeroed State when the stored record is invalid.
func (r *Retained) Load() bool {
	r.store.ReadRetained(r.buf[:])
	state, err := DecodeRetained(r.buf[:])
	r.State = state
	return err == nil
}

// Persist writes the current State to the store.
func (r *Retained) Persist() {
	r.State.Encode(r.buf[:])
	r.store.WriteRetained(r.buf[:])
}
