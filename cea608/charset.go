package cea608

import "fmt"

// noGlyph marks a table slot that is defined by the standard but has no
// printable rendering here (transparent space, 0x1337).
const noGlyph rune = -1

// Standard maps a 7-bit basic character code to its rune. Codes match
// ASCII except for the ten positions CEA-608 reassigns to accented Latin
// letters, the division sign and a solid block.
func Standard(b byte) (rune, error) {
	if b > 0x7F {
		return 0, fmt.Errorf("%w: standard 0x%02X", ErrCharacterDomain, b)
	}
	switch b {
	case 0x2A:
		return 'á', nil
	case 0x5C:
		return 'é', nil
	case 0x5E:
		return 'í', nil
	case 0x5F:
		return 'ó', nil
	case 0x60:
		return 'ú', nil
	case 0x7B:
		return 'ç', nil
	case 0x7C:
		return '÷', nil
	case 0x7D:
		return 'Ñ', nil
	case 0x7E:
		return 'ñ', nil
	case 0x7F:
		return '█', nil
	}
	return rune(b), nil
}

// specialTable is indexed by second-byte - 0x30 (first byte 0x11).
var specialTable = [16]rune{
	'®', '°', '½', '¿', '™', '¢', '£', '♪',
	'à', noGlyph, 'è', 'â', 'ê', 'î', 'ô', 'û',
}

// Special maps the second byte of a 0x11 0x30-0x3F special character code.
// Transparent space (0x39) returns ErrUnsupportedCharacter.
func Special(b byte) (rune, error) {
	if b < 0x30 || b > 0x3F {
		return 0, fmt.Errorf("%w: special 0x%02X", ErrCharacterDomain, b)
	}
	return lookup(specialTable[b-0x30], 0x11, b)
}

// extendedTable is indexed by [first-0x12][second-0x20].
var extendedTable = [2][32]rune{
	// 0x12: Spanish, miscellaneous, French
	{
		'Á', 'É', 'Ó', 'Ú', 'Ü', 'ü', '‘', '¡',
		'*', '\'', '—', '©', '℠', '•', '“', '”',
		'À', 'Â', 'Ç', 'È', 'Ê', 'Ë', 'ë', 'Î',
		'Ï', 'ï', 'Ô', 'Ù', 'ù', 'Û', '«', '»',
	},
	// 0x13: Portuguese, German, Danish
	{
		'Ã', 'ã', 'Í', 'Ì', 'ì', 'Ò', 'ò', 'Õ',
		'õ', '{', '}', '\\', '^', '_', '|', '~',
		'Ä', 'ä', 'Ö', 'ö', 'ß', '¥', '¤', noGlyph,
		'Å', 'å', 'Ø', 'ø', '┌', '┐', '└', '┘',
	},
}

// Extended maps a two-byte extended Western European character code.
// first must be 0x12 or 0x13 and second 0x20-0x3F (channel 1 values).
func Extended(first, second byte) (rune, error) {
	if (first != 0x12 && first != 0x13) || second < 0x20 || second > 0x3F {
		return 0, fmt.Errorf("%w: extended 0x%02X%02X", ErrCharacterDomain, first, second)
	}
	return lookup(extendedTable[first-0x12][second-0x20], first, second)
}

func lookup(r rune, first, second byte) (rune, error) {
	switch r {
	case 0:
		return 0, fmt.Errorf("%w: 0x%02X%02X", ErrMappingGap, first, second)
	case noGlyph:
		return 0, fmt.Errorf("%w: 0x%02X%02X", ErrUnsupportedCharacter, first, second)
	}
	return r, nil
}
