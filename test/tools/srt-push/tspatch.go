package main

import "github.com/zsiec/cc608/internal/tstest"

// stamp locates one timestamp field in a TS buffer so it can be shifted
// in place.
type stamp struct {
	off int
	pcr bool
}

// scanTimestamps returns every PES PTS/DTS and adaptation-field PCR in
// data, with the first and last video PTS in 90 kHz ticks. firstPTS is
// -1 when the data has no video PTS. Caption times come from video PTS,
// so only video sets the loop length.
func scanTimestamps(data []byte) (stamps []stamp, firstPTS, lastPTS int64) {
	firstPTS = -1
	for off := 0; off+tstest.PacketSize <= len(data); off += tstest.PacketSize {
		pkt := data[off : off+tstest.PacketSize]
		if pkt[0] != 0x47 {
			continue
		}

		pos := 4
		if pkt[3]&0x20 != 0 {
			afLen := int(pkt[4])
			if afLen >= 7 && pkt[5]&0x10 != 0 {
				stamps = append(stamps, stamp{off: off + 6, pcr: true})
			}
			pos += 1 + afLen
		}
		if pkt[1]&0x40 == 0 || pkt[3]&0x10 == 0 || pos+14 > tstest.PacketSize {
			continue
		}

		pes := pkt[pos:]
		if pes[0] != 0 || pes[1] != 0 || pes[2] != 1 {
			continue
		}
		sid := pes[3]
		video := sid >= 0xE0 && sid <= 0xEF
		if !video && (sid < 0xC0 || sid > 0xDF) {
			continue
		}
		if pes[7]&0x80 != 0 {
			stamps = append(stamps, stamp{off: off + pos + 9})
			if video {
				pts := readPTS(pes[9:])
				if firstPTS < 0 || pts < firstPTS {
					firstPTS = pts
				}
				lastPTS = max(lastPTS, pts)
			}
		}
		if pes[7]&0x40 != 0 && pos+19 <= tstest.PacketSize {
			stamps = append(stamps, stamp{off: off + pos + 14})
		}
	}
	return stamps, firstPTS, lastPTS
}

// addTimestampOffset shifts every stamp by delta ticks. Applied once per
// loop it keeps PTS increasing across loops.
func addTimestampOffset(data []byte, stamps []stamp, delta int64) {
	for _, s := range stamps {
		b := data[s.off:]
		if s.pcr {
			writePCR(b, readPCR(b)+delta)
		} else {
			writePTS(b, readPTS(b)+delta)
		}
	}
}

func readPTS(b []byte) int64 {
	return int64(b[0]&0x0E)<<29 | int64(b[1])<<22 | int64(b[2]&0xFE)<<14 |
		int64(b[3])<<7 | int64(b[4])>>1
}

// writePTS keeps the 4-bit prefix of b[0] and sets the marker bits.
func writePTS(b []byte, pts int64) {
	b[0] = b[0]&0xF0 | byte(pts>>29)&0x0E | 0x01
	b[1] = byte(pts >> 22)
	b[2] = byte(pts>>14)&0xFE | 0x01
	b[3] = byte(pts >> 7)
	b[4] = byte(pts<<1) | 0x01
}

// readPCR returns the 33-bit base; the 9-bit extension is left alone.
func readPCR(b []byte) int64 {
	return int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 |
		int64(b[3])<<1 | int64(b[4])>>7
}

func writePCR(b []byte, base int64) {
	b[0] = byte(base >> 25)
	b[1] = byte(base >> 17)
	b[2] = byte(base >> 9)
	b[3] = byte(base >> 1)
	b[4] = byte(base&1)<<7 | 0x7E | b[4]&0x01
}
