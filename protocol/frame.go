package protocol

import (
	"bytes"
	"errors"
	"sync/atomic"
)

var (
	// ErrFrameIncomplete means the buffer holds the start of a frame only
	ErrFrameIncomplete = errors.New("frame incomplete")

	// ErrFrameInvalid means the stream is corrupt and must be resynchronized
	ErrFrameInvalid = errors.New("frame invalid")
)

// Frame is one validated message
type Frame struct {
	Sequence uint8
	Payload  []byte // aliases the parsed buffer
}

// ParseFrame validates the frame at the start of data and returns it with
// the number of bytes it occupies.
func ParseFrame(data []byte) (Frame, int, error) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, ErrFrameIncomplete
	}

	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return Frame{}, 0, ErrFrameInvalid
	}
	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return Frame{}, 0, ErrFrameInvalid
	}
	if len(data) < n {
		return Frame{}, 0, ErrFrameIncomplete
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return Frame{}, 0, ErrFrameInvalid
	}

	crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if crc != CRC16(data[:n-MessageTrailerSize]) {
		return Frame{}, 0, ErrFrameInvalid
	}

	return Frame{
		Sequence: seq,
		Payload:  data[MessageHeaderSize : n-MessageTrailerSize],
	}, n, nil
}

// EncodeFrame writes a frame with sequence seq to output. body fills the
// payload and may be nil for an ACK/NAK.
func EncodeFrame(output OutputBuffer, seq uint8, body func(output OutputBuffer)) {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})

	if body != nil {
		body(output)
	}

	length := len(output.DataSince(cursor)) + MessageTrailerSize
	output.Update(cursor+MessagePositionLen, uint8(length))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// NextSequence returns the sequence that follows seq
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// frameReader splits a byte stream into frames. After corruption it drops
// bytes up to the next sync byte.
type frameReader struct {
	synchronized uint32 // atomic bool
}

func newFrameReader() frameReader {
	return frameReader{synchronized: 1}
}

// scan delivers every complete frame in data to onFrame and returns the
// number of bytes consumed. onResync, if set, runs when sync is regained.
func (r *frameReader) scan(data []byte, onResync func(), onFrame func(Frame)) int {
	total := len(data)

	for len(data) > 0 {
		if !r.isSynchronized() {
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			r.setSynchronized(true)
			if onResync != nil {
				onResync()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		frame, n, err := ParseFrame(data)
		if err == ErrFrameIncomplete {
			break
		}
		if err != nil {
			r.setSynchronized(false)
			continue
		}
		data = data[n:]
		onFrame(frame)
	}

	return total - len(data)
}

func (r *frameReader) isSynchronized() bool {
	return atomic.LoadUint32(&r.synchronized) != 0
}

func (r *frameReader) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&r.synchronized, 1)
	} else {
		atomic.StoreUint32(&r.synchronized, 0)
	}
}
