//go:build rp2040

package main

import (
	"machine"
	"time"

	"vrtt/backend/sysclk"
	"vrtt/core"
	"vrtt/protocol"
)

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport
	monitor      *core.Monitor
	rtt          *core.RTT

	// Debug counters
	messagesReceived uint32
	messagesSent     uint32
	msgerrors        uint32
)

func main() {
	// A previous watchdog reset may leave the watchdog running
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	ds := initDS3231()
	retained := core.NewRetained(scratchMemory{})
	scheduler := core.NewScheduler(hardwareMicros)
	driver := sysclk.New(sysclk.ClockFunc(hardwareMicros), scheduler, ds, retained)

	rtt = core.New(driver, ds, retained)
	rtt.Init()

	monitor = core.NewMonitor(rtt, "sysclk")
	monitor.Dictionary().AddConstant("MCU", "rp2040")
	monitor.Dictionary().AddConstant("RTC", "ds3231")

	// Reboot keeps the counter: save it, then reset through the watchdog
	monitor.Registry().Register("reset", "", func(data *[]byte) error {
		rtt.PrepareReboot()
		machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		machine.Watchdog.Start()
		for {
			time.Sleep(time.Millisecond)
		}
	})

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, monitor.Registry().Dispatch)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	monitor.SetSender(transport)

	go serialReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			// Delivers the alarm and samples the clock for wrap extension
			scheduler.Dispatch()

			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
				messagesReceived++
			}

			monitor.Poll()

			if result := outputBuffer.Result(); len(result) > 0 {
				machine.Serial.Write(result)
				outputBuffer.Reset()
				messagesSent++
			}
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// serialReaderLoop moves bytes from the USB CDC serial into inputBuffer
func serialReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go serialReaderLoop()
		}
	}()

	for {
		if machine.Serial.Buffered() == 0 {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		b, err := machine.Serial.ReadByte()
		if err != nil {
			msgerrors++
			continue
		}
		inputBuffer.Write([]byte{b})
	}
}
