package cea608

import "math/bits"

// HasOddParity reports whether b carries valid CEA-608 odd parity: the
// high bit is set so the total number of one bits is odd.
func HasOddParity(b byte) bool {
	return bits.OnesCount8(b)%2 == 1
}

// StripParity validates the parity bit of b and returns its low seven
// bits. ok is false when the parity check fails.
func StripParity(b byte) (v byte, ok bool) {
	if !HasOddParity(b) {
		return 0, false
	}
	return b & 0x7F, true
}

// AddParity sets the high bit of a 7-bit value so the byte has odd parity.
// Any existing high bit is discarded first.
func AddParity(b byte) byte {
	b &= 0x7F
	if bits.OnesCount8(b)%2 == 0 {
		return b | 0x80
	}
	return b
}
