package protocol

import "sync/atomic"

// CommandHandler decodes and runs one command. It must consume exactly
// its own arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device end of the link. It validates host frames,
// dispatches their commands in order and answers every frame with an
// ACK/NAK carrying the next expected sequence.
type Transport struct {
	reader       frameReader
	nextSequence uint32 // atomic; host frames carry 0x10-0x1F

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func() // host restarted its sequence
	flushCallback func() // push an ACK out immediately
}

// NewTransport creates a device transport writing frames to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		reader:       newFrameReader(),
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
}

// Receive processes every complete frame in input and pops what it used.
// A partial frame stays buffered for the next call.
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.reader.scan(input.Data(), t.encodeAckNak, t.handleFrame)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) handleFrame(frame Frame) {
	expected := uint8(atomic.LoadUint32(&t.nextSequence))

	// A sequence back at the start means the host reconnected
	if frame.Sequence == MessageDest && expected != MessageDest {
		atomic.StoreUint32(&t.nextSequence, MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	// Out of order frames are dropped; the ACK below doubles as a NAK
	if frame.Sequence == expected {
		atomic.StoreUint32(&t.nextSequence, uint32(NextSequence(expected)))
		_ = t.dispatch(frame.Payload)
	}
	t.encodeAckNak()
}

// dispatch runs the commands of one frame
func (t *Transport) dispatch(payload []byte) error {
	defer func() {
		if r := recover(); r != nil {
			t.reader.setSynchronized(false)
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.reader.setSynchronized(false)
			return err
		}
		if t.handler == nil {
			continue
		}
		// A failed command leaves the rest of the frame undecodable
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) encodeAckNak() {
	EncodeFrame(t.output, uint8(atomic.LoadUint32(&t.nextSequence)), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand queues a response or event frame. Responses carry the
// current sequence, the same as the ACK that follows them.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	EncodeFrame(t.output, seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on state, after a link reconnect
func (t *Transport) Reset() {
	t.reader.setSynchronized(true)
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
