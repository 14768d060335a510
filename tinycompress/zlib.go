// Package tinycompress writes zlib streams made of stored DEFLATE blocks.
// It keeps no window or Huffman tables, so it fits a firmware heap, and any
// zlib reader inflates its output.
package tinycompress

import (
	"bytes"
	"errors"
	"hash"
	"hash/adler32"
	"io"
)

// MaxBlock is the largest payload of one stored block
const MaxBlock = 65535

// zlib header: deflate, 32K window, fastest level
var header = [2]byte{0x78, 0x01}

var ErrClosed = errors.New("tinycompress: write to closed writer")

// Writer buffers input and emits it as stored blocks
type Writer struct {
	w           io.Writer
	buf         []byte
	adler       hash.Hash32
	wroteHeader bool
	closed      bool
	err         error
}

// NewWriter returns a writer compressing into w. Close must be called to
// finish the stream.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, adler: adler32.New()}
}

func (z *Writer) Write(p []byte) (int, error) {
	if z.closed {
		return 0, ErrClosed
	}
	if z.err != nil {
		return 0, z.err
	}
	z.adler.Write(p)
	z.buf = append(z.buf, p...)
	for len(z.buf) > MaxBlock && z.err == nil {
		z.block(z.buf[:MaxBlock], false)
		z.buf = z.buf[MaxBlock:]
	}
	return len(p), z.err
}

// Close writes the final block and the Adler-32 trailer
func (z *Writer) Close() error {
	if z.closed {
		return z.err
	}
	z.closed = true
	if z.err != nil {
		return z.err
	}
	z.block(z.buf, true)
	z.buf = nil

	sum := z.adler.Sum32()
	z.write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return z.err
}

func (z *Writer) block(data []byte, final bool) {
	if !z.wroteHeader {
		z.write(header[:])
		z.wroteHeader = true
	}
	var bfinal byte
	if final {
		bfinal = 1
	}
	n := uint16(len(data))
	z.write([]byte{bfinal, byte(n), byte(n >> 8), byte(^n), byte(^n >> 8)})
	z.write(data)
}

func (z *Writer) write(p []byte) {
	if z.err != nil {
		return
	}
	_, z.err = z.w.Write(p)
}

// Compress returns data as a complete zlib stream
func Compress(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data) + 11)
	w := NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}
