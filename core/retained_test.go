package core

import (
	"errors"
	"testing"
)

func TestRetainedEncodeDecode(t *testing.T) {
	want := RetainedState{RTCCounter: 0xDEADBEEF, ActiveCounter: 1342177279, Offset: 42}

	var buf [RetainedSize]byte
	want.Encode(buf[:])

	got, err := DecodeRetained(buf[:])
	if err != nil {
		t.Fatalf("DecodeRetained failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestRetainedDecodeInvalid(t *testing.T) {
	var valid [RetainedSize]byte
	RetainedState{RTCCounter: 1, ActiveCounter: 2, Offset: 3}.Encode(valid[:])

	corrupt := func(i int) []byte {
		buf := valid
		buf[i] ^= 0x01
		return buf[:]
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"zeroed", make([]byte, RetainedSize)},
		{"erased", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"short", valid[:RetainedSize-1]},
		{"rtc bit flip", corrupt(0)},
		{"offset bit flip", corrupt(9)},
		{"magic bit flip", corrupt(12)},
		{"crc bit flip", corrupt(15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRetained(tt.data)
			if !errors.Is(err, ErrRetainedInvalid) {
				t.Errorf("Expected ErrRetainedInvalid, got %v", err)
			}
		})
	}
}

func TestRetainedLoadPersist(t *testing.T) {
	store := &memStore{}
	r := NewRetained(store)

	if r.Load() {
		t.Fatal("Expected Load to fail on an empty store")
	}
	if r.State != (RetainedState{}) {
		t.Errorf("Expected zeroed state after failed load, got %+v", r.State)
	}

	r.State = RetainedState{RTCCounter: 10, ActiveCounter: 20, Offset: 30}
	r.Persist()

	other := NewRetained(store)
	if !other.Load() {
		t.Fatal("Expected Load to succeed after Persist")
	}
	if other.State != r.State {
		t.Errorf("Expected %+v, got %+v", r.State, other.State)
	}
}

func TestRetainedEncodeShortBufferPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for short buffer")
		}
	}()
	RetainedState{}.Encode(make([]byte, 4))
}

func TestTicksToUS(t *testing.T) {
	tests := []struct {
		ticks, cali, want uint32
	}{
		{0, 27306, 0},
		{150000, 27306, 999975},
		{1000, 1 << CalibrationShift, 1000},
		{3, 1000000 << CalibrationShift, 3000000},
		{0xFFFFFFFF, 1 << CalibrationShift, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		if got := TicksToUS(tt.ticks, tt.cali); got != tt.want {
			t.Errorf("TicksToUS(%d, %d) = %d, want %d", tt.ticks, tt.cali, got, tt.want)
		}
	}
}

func TestElapsedUSAcrossRTCWrap(t *testing.T) {
	rtc := &fakeRTC{ticks: 50}
	if got := ElapsedUS(rtc, 0xFFFFFFF0); got != 66 {
		t.Errorf("Expected 66 us across the RTC wrap, got %d", got)
	}
}
