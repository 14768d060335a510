// Package protocol implements the framed serial link between an RTT target
// and its monitor host.
//
// A frame is
//
//	[len][seq][payload ...][crc hi][crc lo][0x7E]
//
// where the payload is a run of VLQ command IDs, each followed by its VLQ
// or length-prefixed arguments. A frame with an empty payload is an
// ACK/NAK carrying the next sequence the receiver expects.
package protocol

// Version is the firmware version reported in the dictionary
const Version = "vrtt-0.1.0"

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

// ScratchSize is the capacity of a ScratchOutput, enough for several
// frames queued between flushes
const ScratchSize = 512
