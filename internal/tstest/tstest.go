// Package tstest builds synthetic MPEG transport streams carrying A/53
// closed captions in H.264 or H.265 SEI, for tests and test tools.
package tstest

import (
	"encoding/binary"
	"math/bits"
)

// PacketSize is the fixed size of an MPEG-TS packet.
const PacketSize = 188

// Default PIDs used by Stream.
const (
	PMTPID   = 0x1000
	VideoPID = 0x100
)

// Stream types.
const (
	StreamTypeH264 = 0x1B
	StreamTypeH265 = 0x24
)

// Triplet is one A/53 cc_data entry. Field is 1 or 2; Data holds the two
// caption bytes without parity, which BuildA53 adds.
type Triplet struct {
	Field int
	Data  [2]byte
}

// Stream accumulates transport packets for a single-program stream.
type Stream struct {
	streamType byte
	ts         []byte
	cc         map[uint16]byte
}

// NewStream starts a stream whose PMT announces one video stream of the
// given type, and writes the PAT and PMT.
func NewStream(streamType byte) *Stream {
	s := &Stream{streamType: streamType, cc: make(map[uint16]byte)}
	s.WriteTables()
	return s
}

// WriteTables appends a PAT and PMT.
func (s *Stream) WriteTables() {
	s.write(0x0000, append([]byte{0x00}, PAT(PMTPID)...))
	s.write(PMTPID, append([]byte{0x00}, PMT(VideoPID, s.streamType)...))
}

// AccessUnit appends one video PES holding the given NAL units, each
// prefixed with a 4-byte start code.
func (s *Stream) AccessUnit(pts int64, nals ...[]byte) {
	var es []byte
	for _, nal := range nals {
		es = append(es, 0x00, 0x00, 0x00, 0x01)
		es = append(es, nal...)
	}
	s.write(VideoPID, BuildPES(pts, es))
}

// CaptionFrame appends an access unit carrying an access unit delimiter,
// a caption SEI built from triplets, and a dummy slice.
func (s *Stream) CaptionFrame(pts int64, triplets ...Triplet) {
	if s.streamType == StreamTypeH265 {
		s.AccessUnit(pts, []byte{0x46, 0x01, 0x50}, HEVCCaptionSEI(triplets), []byte{0x02, 0x01, 0xD0})
		return
	}
	s.AccessUnit(pts, []byte{0x09, 0xF0}, CaptionSEI(triplets), []byte{0x01, 0x9A, 0x00})
}

// Bytes returns the stream so far.
func (s *Stream) Bytes() []byte {
	return s.ts
}

func (s *Stream) write(pid uint16, unit []byte) {
	cc := s.cc[pid]
	s.ts = append(s.ts, Packetize(unit, pid, &cc)...)
	s.cc[pid] = cc
}

// Packetize splits a payload unit into 188-byte packets on pid, setting
// payload_unit_start on the first and padding the last with adaptation
// field stuffing.
func Packetize(unit []byte, pid uint16, cc *byte) []byte {
	var out []byte
	for first := true; first || len(unit) > 0; first = false {
		var pkt [PacketSize]byte
		pkt[0] = 0x47
		pkt[1] = byte(pid>>8) & 0x1F
		pkt[2] = byte(pid)
		if first {
			pkt[1] |= 0x40
		}
		pkt[3] = 0x10 | *cc&0x0F
		*cc = (*cc + 1) & 0x0F

		offset := 4
		if n := len(unit); n < PacketSize-4 {
			pkt[3] |= 0x20
			afLen := PacketSize - 5 - n
			pkt[4] = byte(afLen)
			for i := 6; i < 5+afLen; i++ {
				pkt[i] = 0xFF
			}
			offset = 5 + afLen
		}
		n := copy(pkt[offset:], unit)
		unit = unit[n:]
		out = append(out, pkt[:]...)
	}
	return out
}

// BuildPES builds an unbounded-length video PES packet with a PTS.
func BuildPES(pts int64, es []byte) []byte {
	pes := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x80, 0x05,
		0x21 | byte(pts>>29)&0x0E,
		byte(pts >> 22),
		byte(pts>>14)&0xFE | 0x01,
		byte(pts >> 7),
		byte(pts<<1) | 0x01,
	}
	return append(pes, es...)
}

// PAT returns a PAT section for program 1 with the given PMT PID.
func PAT(pmtPID uint16) []byte {
	sec := []byte{0x00, 0xB0, 0x0D, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0x00, 0x01, 0xE0 | byte(pmtPID>>8)&0x1F, byte(pmtPID)}
	return appendCRC(sec)
}

// PMT returns a PMT section announcing one elementary stream, which is
// also the PCR PID.
func PMT(pid uint16, streamType byte) []byte {
	sec := []byte{0x02, 0xB0, 0x12, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0xE0 | byte(pid>>8)&0x1F, byte(pid), 0xF0, 0x00,
		streamType, 0xE0 | byte(pid>>8)&0x1F, byte(pid), 0xF0, 0x00}
	return appendCRC(sec)
}

// BuildA53 builds the ITU-T T.35 payload of an A/53 cc_data SEI.
func BuildA53(triplets []Triplet) []byte {
	n := min(len(triplets), 31)
	p := []byte{0xB5, 0x00, 0x31, 'G', 'A', '9', '4', 0x03, 0x40 | byte(n), 0xFF}
	for _, t := range triplets[:n] {
		p = append(p, 0xFC|byte(t.Field-1)&0x01, AddParity(t.Data[0]), AddParity(t.Data[1]))
	}
	return append(p, 0xFF)
}

// CaptionSEI returns an H.264 SEI NAL unit (header included, no start
// code) carrying the triplets.
func CaptionSEI(triplets []Triplet) []byte {
	msg := append(EncodeSEIMessage(4, BuildA53(triplets)), 0x80)
	return append([]byte{0x06}, AddEPB(msg)...)
}

// HEVCCaptionSEI returns an H.265 prefix SEI NAL unit carrying the
// triplets.
func HEVCCaptionSEI(triplets []Triplet) []byte {
	msg := append(EncodeSEIMessage(4, BuildA53(triplets)), 0x80)
	return append([]byte{39 << 1, 0x01}, AddEPB(msg)...)
}

// EncodeSEIMessage encodes an SEI message header and payload.
func EncodeSEIMessage(payloadType int, payload []byte) []byte {
	var out []byte
	for pt := payloadType; ; pt -= 255 {
		if pt < 255 {
			out = append(out, byte(pt))
			break
		}
		out = append(out, 0xFF)
	}
	for ps := len(payload); ; ps -= 255 {
		if ps < 255 {
			out = append(out, byte(ps))
			break
		}
		out = append(out, 0xFF)
	}
	return append(out, payload...)
}

// AddEPB inserts emulation prevention bytes.
func AddEPB(data []byte) []byte {
	var out []byte
	zeros := 0
	for _, b := range data {
		if zeros >= 2 && b <= 0x03 {
			out = append(out, 0x03)
			zeros = 0
		}
		out = append(out, b)
		if b == 0x00 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// AddParity sets bit 7 so the byte has odd parity.
func AddParity(b byte) byte {
	b &= 0x7F
	if bits.OnesCount8(b)%2 == 0 {
		return b | 0x80
	}
	return b
}

// Control returns the triplets for a field 1 control code sent twice, as
// broadcasters do, one per frame.
func Control(cc1, cc2 byte) [][]Triplet {
	t := []Triplet{{Field: 1, Data: [2]byte{cc1, cc2}}}
	return [][]Triplet{t, t}
}

// Text returns field 1 triplets for s, two characters per frame.
func Text(s string) [][]Triplet {
	var frames [][]Triplet
	for i := 0; i < len(s); i += 2 {
		d := [2]byte{s[i], 0x00}
		if i+1 < len(s) {
			d[1] = s[i+1]
		}
		frames = append(frames, []Triplet{{Field: 1, Data: d}})
	}
	return frames
}

func appendCRC(sec []byte) []byte {
	crc := uint32(0xFFFFFFFF)
	for _, b := range sec {
		crc ^= uint32(b) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return binary.BigEndian.AppendUint32(sec, crc)
}
