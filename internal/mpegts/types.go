// Package mpegts reads the video elementary stream of an MPEG transport
// stream as a sequence of timestamped access units. It discovers the
// video PID through the PAT and PMT, reassembles PES packets, and
// extracts their presentation timestamps.
package mpegts

import "errors"

const (
	// PacketSize is the size of a transport stream packet.
	PacketSize = 188

	syncByte = 0x47
	pidPAT   = 0x0000
	pidNull  = 0x1FFF
)

// Stream types of video elementary streams that carry caption SEI.
const (
	StreamTypeH264 = 0x1B
	StreamTypeH265 = 0x24
)

// ClockRate is the frequency of PTS values.
const ClockRate = 90000

var (
	ErrSync       = errors.New("mpegts: invalid sync byte")
	ErrShortPES   = errors.New("mpegts: PES packet too short")
	ErrStartCode  = errors.New("mpegts: invalid PES start code")
	ErrCRC        = errors.New("mpegts: CRC32 mismatch")
	ErrShortTable = errors.New("mpegts: table section too short")
)

// packet is a parsed transport stream packet. payload aliases the read
// buffer and must be copied before the next read.
type packet struct {
	pid           uint16
	cc            uint8
	pusi          bool
	tei           bool
	discontinuity bool
	hasPayload    bool
	payload       []byte
}

// ElementaryStream is one entry of a PMT.
type ElementaryStream struct {
	PID        uint16
	StreamType uint8
}

// IsVideo reports whether the stream is H.264 or H.265 video.
func (es ElementaryStream) IsVideo() bool {
	return es.StreamType == StreamTypeH264 || es.StreamType == StreamTypeH265
}

// Codec returns "H.264" or "H.265" for video streams and "" otherwise.
func (es ElementaryStream) Codec() string {
	switch es.StreamType {
	case StreamTypeH264:
		return "H.264"
	case StreamTypeH265:
		return "H.265"
	}
	return ""
}

// AccessUnit is the payload of one video PES packet.
type AccessUnit struct {
	Stream ElementaryStream
	// PTS is the 33-bit presentation timestamp extended across
	// wraparounds, in 90 kHz ticks. It is valid only when HasPTS is set.
	PTS    int64
	HasPTS bool
	Data   []byte
}
