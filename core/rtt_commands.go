package core

import (
	"sync/atomic"

	"vrtt/protocol"
)

// Sender transmits a message to the host. protocol.Transport implements it.
type Sender interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

// Status flag bits reported by get_status
const (
	StatusAlarmPending uint8 = 1 << iota
	StatusAlarmArmed
	StatusOverflowEnabled
	StatusOverflowArmed
	StatusWakeup
)

// Flags packs the boolean fields of s
func (s Status) Flags() uint8 {
	var f uint8
	if s.AlarmPending {
		f |= StatusAlarmPending
	}
	if s.AlarmArmed {
		f |= StatusAlarmArmed
	}
	if s.OverflowEnabled {
		f |= StatusOverflowEnabled
	}
	if s.OverflowArmed {
		f |= StatusOverflowArmed
	}
	if s.Wakeup {
		f |= StatusWakeup
	}
	return f
}

// Monitor exposes an RTT to the host over the monitor protocol. Alarm and
// overflow callbacks run in interrupt context and only latch the event;
// Poll sends it from the main loop.
type Monitor struct {
	rtt      *RTT
	registry *CommandRegistry
	dict     *Dictionary
	sender   Sender

	identifyResponse uint16
	counterResponse  uint16
	statusResponse   uint16
	alarmEvent       uint16
	overflowEvent    uint16

	alarmPending    uint32 // set in the alarm callback
	alarmValue      uint32
	alarmCounter    uint32
	overflowPending uint32 // set in the overflow callback
	overflows       uint32
}

// NewMonitor registers the RTT commands in a new registry. backend names
// the counter driver in the dictionary.
func NewMonitor(rtt *RTT, backend string) *Monitor {
	m := &Monitor{
		rtt:      rtt,
		registry: NewCommandRegistry(),
	}
	m.dict = NewDictionary(m.registry)
	r := m.registry

	// The host bootstraps with these two IDs before it has a dictionary
	m.identifyResponse = r.RegisterResponse("identify_response", "offset=%u data=%.*s")
	r.Register("identify", "offset=%u count=%c", m.cmdIdentify)

	m.counterResponse = r.RegisterResponse("counter", "value=%u")
	m.statusResponse = r.RegisterResponse("status", "counter=%u alarm=%u alarm_active=%u flags=%c")
	m.alarmEvent = r.RegisterResponse("alarm_event", "alarm=%u counter=%u")
	m.overflowEvent = r.RegisterResponse("overflow_event", "count=%u")

	r.Register("get_counter", "", m.cmdGetCounter)
	r.Register("set_counter", "value=%u", m.cmdSetCounter)
	r.Register("set_alarm", "alarm=%u", m.cmdSetAlarm)
	r.Register("clear_alarm", "", m.cmdClearAlarm)
	r.Register("set_overflow", "", m.cmdSetOverflow)
	r.Register("clear_overflow", "", m.cmdClearOverflow)
	r.Register("get_status", "", m.cmdGetStatus)

	m.dict.AddConstantUint("CLOCK_FREQ", 1000000)
	m.dict.AddConstantUint("RTT_MAX_VALUE", 0xFFFFFFFF)
	m.dict.AddConstant("RTT_BACKEND", backend)
	return m
}

// SetSender sets where responses and events go
func (m *Monitor) SetSender(s Sender) {
	m.sender = s
}

// Registry returns the command registry; its Dispatch feeds the transport
func (m *Monitor) Registry() *CommandRegistry {
	return m.registry
}

// Dictionary returns the data dictionary
func (m *Monitor) Dictionary() *Dictionary {
	return m.dict
}

// Poll sends latched alarm and overflow events. Call from the main loop.
func (m *Monitor) Poll() {
	if atomic.CompareAndSwapUint32(&m.alarmPending, 1, 0) {
		alarm := atomic.LoadUint32(&m.alarmValue)
		counter := atomic.LoadUint32(&m.alarmCounter)
		m.send(m.alarmEvent, func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, alarm)
			protocol.EncodeVLQUint(output, counter)
		})
	}
	if atomic.CompareAndSwapUint32(&m.overflowPending, 1, 0) {
		count := atomic.LoadUint32(&m.overflows)
		m.send(m.overflowEvent, func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, count)
		})
	}
}

func (m *Monitor) send(id uint16, args func(output protocol.OutputBuffer)) {
	if m.sender == nil {
		return
	}
	m.sender.SendCommand(id, args)
}

// onAlarm runs in interrupt context
func (m *Monitor) onAlarm(_ interface{}) {
	atomic.StoreUint32(&m.alarmValue, m.rtt.Alarm())
	atomic.StoreUint32(&m.alarmCounter, m.rtt.Counter())
	atomic.StoreUint32(&m.alarmPending, 1)
}

// onOverflow runs in interrupt context
func (m *Monitor) onOverflow(_ interface{}) {
	atomic.AddUint32(&m.overflows, 1)
	atomic.StoreUint32(&m.overflowPending, 1)
}

func (m *Monitor) cmdIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if count > 0xFF {
		count = 0xFF
	}

	chunk := m.dict.Chunk(offset, uint8(count))
	m.send(m.identifyResponse, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func (m *Monitor) cmdGetCounter(data *[]byte) error {
	counter := m.rtt.Counter()
	m.send(m.counterResponse, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, counter)
	})
	return nil
}

func (m *Monitor) cmdSetCounter(data *[]byte) error {
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	DebugPrintln("[MON] set_counter " + Utoa(value))
	m.rtt.SetCounter(value)
	return nil
}

func (m *Monitor) cmdSetAlarm(data *[]byte) error {
	alarm, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	DebugPrintln("[MON] set_alarm " + Utoa(alarm))
	m.rtt.SetAlarm(alarm, m.onAlarm, nil)
	return nil
}

func (m *Monitor) cmdClearAlarm(data *[]byte) error {
	m.rtt.ClearAlarm()
	atomic.StoreUint32(&m.alarmPending, 0)
	return nil
}

func (m *Monitor) cmdSetOverflow(data *[]byte) error {
	m.rtt.SetOverflowCallback(m.onOverflow, nil)
	return nil
}

func (m *Monitor) cmdClearOverflow(data *[]byte) error {
	m.rtt.ClearOverflowCallback()
	atomic.StoreUint32(&m.overflowPending, 0)
	return nil
}

func (m *Monitor) cmdGetStatus(data *[]byte) error {
	st := m.rtt.Status()
	m.send(m.statusResponse, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, st.Counter)
		protocol.EncodeVLQUint(output, st.Alarm)
		protocol.EncodeVLQUint(output, st.AlarmActive)
		protocol.EncodeVLQUint(output, uint32(st.Flags()))
	})
	return nil
}
