package core

// CalibrationShift is the fixed-point shift of RTC calibration factors.
// A factor is the RTC tick period in microseconds scaled by 2^12, the
// same representation the ESP8266 SDK returns from its RTC calibration.
const CalibrationShift = 12

// RTCBridge is the always-on, low-accuracy time source that keeps
// counting through deep sleep and warm reboot.
type RTCBridge interface {
	// Counter returns the raw RTC tick counter. It wraps at 2^32.
	Counter() uint32

	// Calibration returns the current tick period in us << CalibrationShift.
	Calibration() uint32
}

// TicksToUS converts an RTC tick delta to microseconds using a
// calibration factor from RTCBridge.Calibration.
func TicksToUS(ticks uint32, calibration uint32) uint32 {
	return uint32((uint64(ticks) * uint64(calibration)) >> CalibrationShift)
}

// ElapsedUS returns the microseconds elapsed on the bridge since the
// saved RTC snapshot.
func ElapsedUS(rtc RTCBridge, saved uint32) uint32 {
	return TicksToUS(rtc.Counter()-saved, rtc.Calibration())
}
