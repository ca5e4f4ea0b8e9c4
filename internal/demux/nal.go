package demux

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	NALTypeSEI = 6
	NALTypeAUD = 9
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	HEVCNALAUD       = 35
	HEVCNALSEIPrefix = 39
	HEVCNALSEISuffix = 40
)

// NALUnit is one NAL unit of an Annex B byte stream.
type NALUnit struct {
	Type byte   // codec-specific: 5 bits for H.264, 6 bits for H.265
	Data []byte // NAL header and payload, start code removed
}

// splitAnnexB finds 3- and 4-byte start codes and returns the NAL units
// between them. Units shorter than minLen bytes are dropped.
func splitAnnexB(data []byte, minLen int, nalType func([]byte) byte) []NALUnit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type span struct{ sc, start int }
	var spans []span
	for i := 0; i < n-2; {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				spans = append(spans, span{i, i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				spans = append(spans, span{i, i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units []NALUnit
	for idx, s := range spans {
		end := n
		if idx+1 < len(spans) {
			end = spans[idx+1].sc
		}
		if end-s.start < minLen {
			continue
		}
		nal := data[s.start:end]
		units = append(units, NALUnit{Type: nalType(nal), Data: nal})
	}
	return units
}

// ParseAnnexB splits an H.264 Annex B byte stream into NAL units.
func ParseAnnexB(data []byte) []NALUnit {
	return splitAnnexB(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// ParseAnnexBHEVC splits an H.265 Annex B byte stream into NAL units.
func ParseAnnexBHEVC(data []byte) []NALUnit {
	return splitAnnexB(data, 2, func(d []byte) byte { return d[0] >> 1 & 0x3F })
}

// isCaptionSEI reports whether a NAL unit can carry A/53 caption data.
func isCaptionSEI(hevc bool, nal NALUnit) bool {
	if hevc {
		return nal.Type == HEVCNALSEIPrefix || nal.Type == HEVCNALSEISuffix
	}
	return nal.Type == NALTypeSEI
}
