package cea608

import (
	"errors"
	"fmt"
)

// Sentinel errors for recoverable stream anomalies. The decoder reports
// these through its diagnostic handler and keeps going.
var (
	ErrParity               = errors.New("cea608: failed parity check")
	ErrUnknownControlCode   = errors.New("cea608: unsupported control code")
	ErrInvalidPAC           = errors.New("cea608: invalid preamble address code")
	ErrUnsupportedFeature   = errors.New("cea608: unsupported feature")
	ErrNoActiveChannel      = errors.New("cea608: no current channel")
	ErrNonPrinting          = errors.New("cea608: non-printing character")
	ErrUnsupportedCharacter = errors.New("cea608: character has no glyph")
)

// Hard failures. These indicate a defect in the character tables or a
// caller passing bytes outside a mapper's domain, never a stream anomaly.
var (
	ErrMappingGap      = errors.New("cea608: character table has no entry")
	ErrCharacterDomain = errors.New("cea608: code outside character set domain")
	ErrCursorRange     = errors.New("cea608: cursor position out of range")
)

// Category classifies a Diagnostic.
type Category int

// Diagnostic categories, one per recoverable error kind.
const (
	CategoryParity Category = iota
	CategoryUnknownControlCode
	CategoryInvalidPAC
	CategoryUnsupportedFeature
	CategoryNoActiveChannel
	CategoryNonPrinting
	CategoryUnsupportedCharacter
)

var categoryNames = [...]string{
	CategoryParity:               "parity",
	CategoryUnknownControlCode:   "unknown_control_code",
	CategoryInvalidPAC:           "invalid_pac",
	CategoryUnsupportedFeature:   "unsupported_feature",
	CategoryNoActiveChannel:      "no_active_channel",
	CategoryNonPrinting:          "non_printing",
	CategoryUnsupportedCharacter: "unsupported_character",
}

func (c Category) String() string {
	if c >= 0 && int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Categories returns every diagnostic category in declaration order.
func Categories() []Category {
	out := make([]Category, len(categoryNames))
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// categoryOf maps a soft sentinel error to its category. The second
// result is false for errors that are not recoverable stream anomalies.
func categoryOf(err error) (Category, bool) {
	switch {
	case errors.Is(err, ErrParity):
		return CategoryParity, true
	case errors.Is(err, ErrUnknownControlCode):
		return CategoryUnknownControlCode, true
	case errors.Is(err, ErrInvalidPAC):
		return CategoryInvalidPAC, true
	case errors.Is(err, ErrUnsupportedFeature):
		return CategoryUnsupportedFeature, true
	case errors.Is(err, ErrNoActiveChannel):
		return CategoryNoActiveChannel, true
	case errors.Is(err, ErrNonPrinting):
		return CategoryNonPrinting, true
	case errors.Is(err, ErrUnsupportedCharacter):
		return CategoryUnsupportedCharacter, true
	}
	return 0, false
}

// Diagnostic describes one recoverable anomaly encountered while decoding.
// Pair holds the raw bytes as transmitted (parity bits included).
type Diagnostic struct {
	Category Category
	Pair     [2]byte
	Channel  int // 0 when no channel applies
	Cue      int // zero-based cue index within the session
	Err      error
}

func (d *Diagnostic) Error() string {
	if d.Channel > 0 {
		return fmt.Sprintf("%v (pair %02x%02x, channel %d, cue %d)", d.Err, d.Pair[0], d.Pair[1], d.Channel, d.Cue)
	}
	return fmt.Sprintf("%v (pair %02x%02x, cue %d)", d.Err, d.Pair[0], d.Pair[1], d.Cue)
}

func (d *Diagnostic) Unwrap() error {
	return d.Err
}

// PairHex returns the raw pair as four lowercase hex digits, the form
// used in SCC files.
func (d *Diagnostic) PairHex() string {
	return fmt.Sprintf("%02x%02x", d.Pair[0], d.Pair[1])
}

// DiagnosticHandler receives every diagnostic in stream order. Returning
// a non-nil error aborts decoding; the decoder returns that error.
type DiagnosticHandler func(d *Diagnostic) error
