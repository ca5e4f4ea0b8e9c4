package mpegts

// crcTable is the MPEG-2 CRC32 table for polynomial 0x04C11DB7, MSB first.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

func crc32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// checkCRC reports whether a section, CRC included, is intact. Running
// the CRC over the trailing checksum leaves zero.
func checkCRC(section []byte) bool {
	return len(section) >= 4 && crc32MPEG(section) == 0
}
