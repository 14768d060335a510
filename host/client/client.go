// Package client talks to an RTT target over the monitor protocol.
//
// The client retrieves the target's data dictionary with identify, then
// encodes commands and decodes responses from the signatures it lists.
// alarm_event and overflow_event messages arrive asynchronously on Events.
package client

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"vrtt/core"
	"vrtt/host/serial"
	"vrtt/protocol"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownMessage = errors.New("unknown message")
)

// DefaultTimeout bounds each request: the ACK and then the reply
const DefaultTimeout = time.Second

// Messages the host knows before it has a dictionary
const (
	identifyResponseSignature = "identify_response offset=%u data=%.*s"
	identifySignature         = "identify offset=%u count=%c"
	identifyResponseID        = 0
	identifyID                = 1
	identifyChunk             = 40
)

// Dictionary is the parsed data dictionary of the target
type Dictionary struct {
	Version       string            `json:"version"`
	BuildVersions string            `json:"build_versions"`
	Config        map[string]string `json:"config"`
	Commands      map[string]int    `json:"commands"`
	Responses     map[string]int    `json:"responses"`
}

// EventKind identifies an asynchronous target event
type EventKind uint8

const (
	EventAlarm EventKind = iota + 1
	EventOverflow
)

func (k EventKind) String() string {
	switch k {
	case EventAlarm:
		return "alarm"
	case EventOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Event is an alarm or overflow reported by the target
type Event struct {
	Kind    EventKind
	Alarm   uint32 // alarm value, EventAlarm only
	Counter uint32 // counter when the alarm fired, EventAlarm only
	Count   uint32 // overflows since set_overflow, EventOverflow only
}

// Client is a connection to one target
type Client struct {
	transport *protocol.HostTransport

	// Timeout bounds each request
	Timeout time.Duration

	mu             sync.RWMutex // guards the fields below
	commands       map[string]*messageFormat
	responses      map[uint16]*messageFormat
	dictionary     *Dictionary
	dictionaryData []byte

	requestMu sync.Mutex
	replies   chan *Response
	events    chan Event
	closeOnce sync.Once
}

// New starts a client on port. Call Identify before sending commands other
// than identify.
func New(port io.ReadWriteCloser) *Client {
	identifyResponse, _ := parseFormat(identifyResponseID, identifyResponseSignature)
	identify, _ := parseFormat(identifyID, identifySignature)

	c := &Client{
		Timeout:   DefaultTimeout,
		commands:  map[string]*messageFormat{identify.name: identify},
		responses: map[uint16]*messageFormat{identifyResponse.id: identifyResponse},
		replies:   make(chan *Response, 16),
		events:    make(chan Event, 64),
	}
	c.transport = protocol.NewHostTransport(port, c.handleResponse)
	return c
}

// Open connects to the target on a serial device and retrieves its
// dictionary. baud 0 selects serial.DefaultBaud.
func Open(device string, baud int) (*Client, error) {
	cfg := serial.DefaultConfig(device)
	if baud > 0 {
		cfg.Baud = baud
	}
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}

	c := New(port)
	if err := c.Identify(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the connection and the Events channel
func (c *Client) Close() error {
	err := c.transport.Close()
	c.closeOnce.Do(func() { close(c.events) })
	return err
}

// Events returns the channel of asynchronous target events. Old events are
// dropped when the reader falls behind.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Identify retrieves the compressed dictionary in chunks and loads it
func (c *Client) Identify() error {
	var data bytes.Buffer
	for offset := uint32(0); ; {
		resp, err := c.request("identify", "identify_response", offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("identify at offset %d: %w", offset, err)
		}
		if got := resp.Values["offset"]; got != offset {
			return fmt.Errorf("identify: offset mismatch: expected %d, got %d", offset, got)
		}

		chunk := resp.Data["data"]
		data.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}

	r, err := zlib.NewReader(&data)
	if err != nil {
		return fmt.Errorf("identify: decompress dictionary: %w", err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("identify: decompress dictionary: %w", err)
	}
	return c.loadDictionary(raw)
}

// loadDictionary parses the dictionary JSON and replaces the message
// formats
func (c *Client) loadDictionary(raw []byte) error {
	dict := &Dictionary{}
	if err := json.Unmarshal(raw, dict); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}

	commands := make(map[string]*messageFormat, len(dict.Commands))
	for sig, id := range dict.Commands {
		f, err := parseFormat(uint16(id), sig)
		if err != nil {
			return fmt.Errorf("parse dictionary: %w", err)
		}
		commands[f.name] = f
	}
	responses := make(map[uint16]*messageFormat, len(dict.Responses))
	for sig, id := range dict.Responses {
		f, err := parseFormat(uint16(id), sig)
		if err != nil {
			return fmt.Errorf("parse dictionary: %w", err)
		}
		responses[f.id] = f
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = commands
	c.responses = responses
	c.dictionary = dict
	c.dictionaryData = raw
	return nil
}

// Dictionary returns the loaded dictionary, nil before Identify
func (c *Client) Dictionary() *Dictionary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dictionary
}

// DictionaryRaw returns the uncompressed dictionary JSON
func (c *Client) DictionaryRaw() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dictionaryData
}

// Send sends a command by name without waiting for a reply
func (c *Client) Send(name string, args ...uint32) error {
	_, err := c.request(name, "", args...)
	return err
}

// Request sends a command and waits for the named reply
func (c *Client) Request(name string, reply string, args ...uint32) (*Response, error) {
	return c.request(name, reply, args...)
}

// GetCounter reads the virtual counter
func (c *Client) GetCounter() (uint32, error) {
	resp, err := c.request("get_counter", "counter")
	if err != nil {
		return 0, err
	}
	return resp.Values["value"], nil
}

// SetCounter rebases the virtual counter
func (c *Client) SetCounter(value uint32) error {
	return c.Send("set_counter", value)
}

// SetAlarm arms the alarm; an alarm_event follows when it fires
func (c *Client) SetAlarm(alarm uint32) error {
	return c.Send("set_alarm", alarm)
}

// ClearAlarm disarms the alarm
func (c *Client) ClearAlarm() error {
	return c.Send("clear_alarm")
}

// SetOverflow enables overflow_event on every counter wrap
func (c *Client) SetOverflow() error {
	return c.Send("set_overflow")
}

// ClearOverflow disables overflow events
func (c *Client) ClearOverflow() error {
	return c.Send("clear_overflow")
}

// Status reads the RTT diagnostic snapshot
func (c *Client) Status() (core.Status, error) {
	resp, err := c.request("get_status", "status")
	if err != nil {
		return core.Status{}, err
	}
	flags := uint8(resp.Values["flags"])
	return core.Status{
		Counter:         resp.Values["counter"],
		Alarm:           resp.Values["alarm"],
		AlarmActive:     resp.Values["alarm_active"],
		AlarmPending:    flags&core.StatusAlarmPending != 0,
		AlarmArmed:      flags&core.StatusAlarmArmed != 0,
		OverflowEnabled: flags&core.StatusOverflowEnabled != 0,
		OverflowArmed:   flags&core.StatusOverflowArmed != 0,
		Wakeup:          flags&core.StatusWakeup != 0,
	}, nil
}

// request sends name with args and, unless reply is empty, waits for the
// first response called reply. Requests are serialized.
func (c *Client) request(name string, reply string, args ...uint32) (*Response, error) {
	c.mu.RLock()
	f, ok := c.commands[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownCommand)
	}
	encode, err := f.encode(args)
	if err != nil {
		return nil, err
	}

	c.requestMu.Lock()
	defer c.requestMu.Unlock()

	// Replies to earlier requests that timed out
	for len(c.replies) > 0 {
		<-c.replies
	}

	if err := c.transport.SendCommandWithTimeout(f.id, encode, c.Timeout); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if reply == "" {
		return nil, nil
	}

	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()
	for {
		select {
		case resp := <-c.replies:
			if resp.Name == reply {
				return resp, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("%s: waiting for %s: %w", name, reply, protocol.ErrTimeout)
		}
	}
}

// handleResponse runs on the transport read goroutine
func (c *Client) handleResponse(cmdID uint16, data *[]byte) error {
	c.mu.RLock()
	f, ok := c.responses[cmdID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("message %d: %w", cmdID, ErrUnknownMessage)
	}

	resp, err := f.decode(data)
	if err != nil {
		return err
	}

	switch resp.Name {
	case "alarm_event":
		c.pushEvent(Event{
			Kind:    EventAlarm,
			Alarm:   resp.Values["alarm"],
			Counter: resp.Values["counter"],
		})
	case "overflow_event":
		c.pushEvent(Event{Kind: EventOverflow, Count: resp.Values["count"]})
	default:
		select {
		case c.replies <- resp:
		default:
		}
	}
	return nil
}

func (c *Client) pushEvent(ev Event) {
	select {
	case c.events <- ev:
	default:
		// Drop the oldest
		select {
		case <-c.events:
		default:
		}
		c.events <- ev
	}
}
