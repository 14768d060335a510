package rtc

import (
	"vrtt/core"
)

// Calibratable is a bridge whose factor can be adjusted
type Calibratable interface {
	core.RTCBridge
	SetCalibration(calibration uint32)
}

// Calibrator measures the RTC against an accurate microsecond reference
// and keeps the bridge calibration current. Call Update periodically from
// the main loop; each completed window moves the factor toward the
// measured value by 1/2^Smoothing of the difference.
type Calibrator struct {
	rtc       Calibratable
	reference func() uint32

	Window    uint32 // measurement window in reference microseconds
	Smoothing uint8  // 0 applies each measurement directly

	startRTC uint32
	startRef uint32
	started  bool
	samples  uint32
}

// NewCalibrator creates a calibrator with a one second window
func NewCalibrator(rtc Calibratable, reference func() uint32) *Calibrator {
	if rtc == nil || reference == nil {
		panic("rtc: calibrator needs a bridge and a reference clock")
	}
	return &Calibrator{
		rtc:       rtc,
		reference: reference,
		Window:    1000000,
		Smoothing: 2,
	}
}

// Update samples both clocks. It returns true when a window completed and
// the calibration was updated.
func (c *Calibrator) Update() bool {
	nowRTC := c.rtc.Counter()
	nowRef := c.reference()

	if !c.started {
		c.startRTC, c.startRef = nowRTC, nowRef
		c.started = true
		return false
	}

	refElapsed := nowRef - c.startRef
	if refElapsed < c.Window {
		return false
	}
	rtcElapsed := nowRTC - c.startRTC
	c.startRTC, c.startRef = nowRTC, nowRef
	if rtcElapsed == 0 {
		core.DebugPrintln("[RTC] calibration window saw no RTC ticks")
		return false
	}

	measured := Measure(rtcElapsed, refElapsed)
	current := c.rtc.Calibration()
	next := measured
	if c.samples > 0 && c.Smoothing > 0 {
		delta := int64(measured) - int64(current)
		next = uint32(int64(current) + delta>>c.Smoothing)
	}
	c.samples++
	c.rtc.SetCalibration(next)

	core.DebugPrintln("[RTC] calibration " + core.Utoa(current) + " -> " + core.Utoa(next))
	return true
}

// Reset discards the running window
func (c *Calibrator) Reset() {
	c.started = false
}

// Measure returns the Q12 factor that maps rtcTicks to referenceUS
func Measure(rtcTicks, referenceUS uint32) uint32 {
	if rtcTicks == 0 {
		return 0
	}
	return uint32((uint64(referenceUS) << core.CalibrationShift) / uint64(rtcTicks))
}
