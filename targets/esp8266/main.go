//go:build esp8266

package main

import (
	"machine"

	"vrtt/core"
	"vrtt/protocol"
	"vrtt/rtc"
)

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport
	monitor      *core.Monitor

	msgerrors uint32
)

func main() {
	uart := machine.Serial
	uart.Configure(machine.UARTConfig{BaudRate: 115200})

	bridge := rtc.NewCounter(rtcCounter.Get, rtc.ESP8266Calibration)
	retained := core.NewRetained(rtcMemory{})
	driver, pollBackend, backend := newBackend(bridge, retained)

	rtt := core.New(driver, bridge, retained)
	rtt.Init()

	// The RC oscillator drifts with temperature; track it against the
	// crystal-derived system timer
	calibrator := rtc.NewCalibrator(bridge, wdevNow)

	monitor = core.NewMonitor(rtt, backend)
	monitor.Dictionary().AddConstant("MCU", "esp8266")

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, monitor.Registry().Dispatch)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	monitor.SetSender(transport)

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			pollBackend()
			calibrator.Update()

			for uart.Buffered() > 0 && inputBuffer.Free() > 0 {
				b, err := uart.ReadByte()
				if err != nil {
					msgerrors++
					break
				}
				inputBuffer.Write([]byte{b})
			}
			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}

			monitor.Poll()

			if result := outputBuffer.Result(); len(result) > 0 {
				uart.Write(result)
				outputBuffer.Reset()
			}
		}()
	}
}
