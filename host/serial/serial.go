// Package serial opens the monitor UART of an RTT target.
package serial

import (
	"io"
)

// Port is a serial connection to the target
type Port interface {
	io.ReadWriteCloser

	// Flush discards data the port has buffered but not yet delivered
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate of the target's monitor UART
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultBaud is the boot ROM rate of the ESP8266 UART, which the
// firmware keeps for the monitor
const DefaultBaud = 115200

// DefaultConfig returns the configuration for device at DefaultBaud
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}
