package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTimeout = errors.New("timeout")
	ErrClosed  = errors.New("transport closed")
)

// ResponseHandler receives every non-ACK frame from the device, one
// command at a time. It runs on the read goroutine and must not block.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is a received frame with its payload copied out of the stream
type Message struct {
	Sequence uint8
	Payload  []byte
}

// HostTransport is the host end of the link. It sends one command frame
// at a time and waits for the device to ACK it.
type HostTransport struct {
	port io.ReadWriteCloser

	currentSeq uint32 // atomic; sequence of the next command frame
	reader     frameReader
	input      *FifoBuffer
	output     bytes.Buffer

	ackChan      chan *Message
	responseChan chan *Message
	handler      ResponseHandler

	writeMutex sync.Mutex
	closeOnce  sync.Once
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewHostTransport starts reading from port. handler may be nil; frames
// are also queued for ReceiveResponse.
func NewHostTransport(port io.ReadWriteCloser, handler ResponseHandler) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		reader:       newFrameReader(),
		input:        NewFifoBuffer(512),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 16),
		handler:      handler,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one command and waits for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout is SendCommand with a custom ACK timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	msg, err := t.buildCommandMessage(seq, cmdID, args)
	if err != nil {
		return fmt.Errorf("build command %d: %w", cmdID, err)
	}

	// Forget an ACK left over from a retransmit or resync
	select {
	case <-t.ackChan:
	default:
	}

	if n, err := t.port.Write(msg); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	} else if n != len(msg) {
		return fmt.Errorf("write command %d: incomplete write %d/%d", cmdID, n, len(msg))
	}

	if err := t.waitForAck(NextSequence(seq), timeout); err != nil {
		return fmt.Errorf("command %d: %w", cmdID, err)
	}
	return nil
}

func (t *HostTransport) buildCommandMessage(seq uint8, cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	EncodeFrame(scratch, seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})

	frame := scratch.Result()
	if len(frame) > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", len(frame), MessageLengthMax)
	}

	t.output.Reset()
	t.output.Write(frame)
	return t.output.Bytes(), nil
}

// waitForAck waits for the device to acknowledge up to want
func (t *HostTransport) waitForAck(want uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-t.ackChan:
		if ack.Sequence != want {
			return fmt.Errorf("NAK: expected sequence 0x%02x, device wants 0x%02x", want, ack.Sequence)
		}
		atomic.StoreUint32(&t.currentSeq, uint32(want))
		return nil
	case <-timer.C:
		return fmt.Errorf("ACK after %v: %w", timeout, ErrTimeout)
	case <-t.stopChan:
		return ErrClosed
	}
}

// ReceiveResponse returns the next queued frame
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("response after %v: %w", timeout, ErrTimeout)
	case <-t.stopChan:
		return nil, ErrClosed
	}
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			consumed := t.reader.scan(t.input.Data(), nil, t.dispatchMessage)
			t.input.Pop(consumed)
		}
		if err != nil {
			select {
			case <-t.stopChan:
				return
			default:
			}
			// Serial ports report a read timeout as EOF
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// dispatchMessage routes ACKs to the sender and everything else to the
// handler and the response queue
func (t *HostTransport) dispatchMessage(frame Frame) {
	msg := &Message{
		Sequence: frame.Sequence,
		Payload:  append([]byte(nil), frame.Payload...),
	}

	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
		}
		return
	}

	if t.handler != nil {
		payload := msg.Payload
		for len(payload) > 0 {
			cmdID, err := DecodeVLQUint(&payload)
			if err != nil {
				break
			}
			// The handler consumes its arguments; stop if it cannot
			if err := t.handler(uint16(cmdID), &payload); err != nil {
				break
			}
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		// Drop the oldest
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close closes the port and waits for the read goroutine to exit
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}

// Sequence returns the sequence of the next command frame
func (t *HostTransport) Sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
