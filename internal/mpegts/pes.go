package mpegts

import "fmt"

// pesHeader is the part of a PES header this package uses.
type pesHeader struct {
	streamID byte
	pts      int64
	hasPTS   bool
}

// parsePES splits a reassembled video PES packet into its header and
// elementary stream data. A zero PES_packet_length means the packet runs
// to the end of the payload, which is usual for video.
func parsePES(payload []byte) (pesHeader, []byte, error) {
	var h pesHeader
	if len(payload) < 9 {
		return h, nil, fmt.Errorf("%w (%d bytes)", ErrShortPES, len(payload))
	}
	if payload[0] != 0x00 || payload[1] != 0x00 || payload[2] != 0x01 {
		return h, nil, ErrStartCode
	}
	h.streamID = payload[3]
	length := int(payload[4])<<8 | int(payload[5])

	end := len(payload)
	if length > 0 && 6+length < end {
		end = 6 + length
	}
	start := 9 + int(payload[8])
	if start > end {
		return h, nil, fmt.Errorf("%w: header length %d", ErrShortPES, payload[8])
	}

	// PTS_DTS_flags '10' or '11' both carry a PTS first.
	if payload[7]&0x80 != 0 && len(payload) >= 14 {
		h.pts = decodeTimestamp(payload[9:14])
		h.hasPTS = true
	}
	return h, payload[start:end], nil
}

// decodeTimestamp extracts a 33-bit PTS or DTS from its 5-byte encoding.
func decodeTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}
