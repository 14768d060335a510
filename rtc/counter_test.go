package rtc

import (
	"testing"

	"vrtt/core"
)

func TestESP8266Calibration(t *testing.T) {
	// 150 kHz nominal: one second is 150000 ticks
	// 27306.67 rounds to nearest, not down
	if ESP8266Calibration != 27307 {
		t.Errorf("Expected factor 27307, got %d", ESP8266Calibration)
	}
	us := core.TicksToUS(150000, ESP8266Calibration)
	if us < 999900 || us > 1000100 {
		t.Errorf("Expected about one second, got %d us", us)
	}
}

func TestCounter(t *testing.T) {
	ticks := uint32(10)
	c := NewCounter(func() uint32 { return ticks }, ESP8266Calibration)

	if c.Counter() != 10 {
		t.Errorf("Expected 10, got %d", c.Counter())
	}
	ticks = 0xFFFFFFFF
	if c.Counter() != 0xFFFFFFFF {
		t.Errorf("Expected the raw register value, got %d", c.Counter())
	}

	c.SetCalibration(30000)
	if c.Calibration() != 30000 {
		t.Errorf("Expected calibration 30000, got %d", c.Calibration())
	}
	c.SetCalibration(0)
	if c.Calibration() != 30000 {
		t.Error("Zero calibration was accepted")
	}
}

func TestNewCounterPanics(t *testing.T) {
	tests := []struct {
		name string
		read func() uint32
		cali uint32
	}{
		{"nil read", nil, ESP8266Calibration},
		{"zero calibration", func() uint32 { return 0 }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Expected panic")
				}
			}()
			NewCounter(tt.read, tt.cali)
		})
	}
}
