package mpegts

import "fmt"

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// sections splits a PSI payload (pointer field first) into complete
// sections. complete is false when the last section is cut short and
// more packets are needed.
func sections(payload []byte) (secs [][]byte, complete bool) {
	if len(payload) < 1 {
		return nil, false
	}
	offset := 1 + int(payload[0])
	if offset > len(payload) {
		return nil, false
	}
	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return secs, true
		}
		if offset+3 > len(payload) {
			return secs, false
		}
		// Zero padding has section_syntax_indicator clear.
		if payload[offset+1]&0x80 == 0 {
			return secs, true
		}
		end := offset + 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
		if end > len(payload) {
			return secs, false
		}
		secs = append(secs, payload[offset:end])
		offset = end
	}
	return secs, true
}

// parsePAT returns the PMT PIDs of a PAT section, skipping the NIT entry.
func parsePAT(sec []byte) ([]uint16, error) {
	// table_id(1) length(2) ts_id(2) version(1) section(1) last(1)
	// entries(4 each) CRC(4)
	if len(sec) < 12 {
		return nil, fmt.Errorf("PAT: %w", ErrShortTable)
	}
	if !checkCRC(sec) {
		return nil, fmt.Errorf("PAT: %w", ErrCRC)
	}
	var pids []uint16
	for i := 8; i+4 <= len(sec)-4; i += 4 {
		program := uint16(sec[i])<<8 | uint16(sec[i+1])
		if program == 0 {
			continue
		}
		pids = append(pids, uint16(sec[i+2]&0x1F)<<8|uint16(sec[i+3]))
	}
	return pids, nil
}

// parsePMT returns the elementary streams listed in a PMT section.
func parsePMT(sec []byte) ([]ElementaryStream, error) {
	// table_id(1) length(2) program(2) version(1) section(1) last(1)
	// PCR_PID(2) program_info_length(2) descriptors entries CRC(4)
	if len(sec) < 16 {
		return nil, fmt.Errorf("PMT: %w", ErrShortTable)
	}
	if !checkCRC(sec) {
		return nil, fmt.Errorf("PMT: %w", ErrCRC)
	}
	end := len(sec) - 4
	offset := 12 + (int(sec[10]&0x0F)<<8 | int(sec[11]))
	var streams []ElementaryStream
	for offset+5 <= end {
		streams = append(streams, ElementaryStream{
			StreamType: sec[offset],
			PID:        uint16(sec[offset+1]&0x1F)<<8 | uint16(sec[offset+2]),
		})
		offset += 5 + (int(sec[offset+3]&0x0F)<<8 | int(sec[offset+4]))
	}
	return streams, nil
}
