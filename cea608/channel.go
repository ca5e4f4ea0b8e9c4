package cea608

import (
	"fmt"
	"log/slog"
)

// Mode is a channel's caption display mode.
type Mode int

// Caption modes. A channel starts in ModeUnset until a control code
// establishes one.
const (
	ModeUnset Mode = iota
	ModePopOn
	ModePaintOn
	ModeRollUp
)

func (m Mode) String() string {
	switch m {
	case ModePopOn:
		return "pop-on"
	case ModePaintOn:
		return "paint-on"
	case ModeRollUp:
		return "roll-up"
	}
	return "unset"
}

// pacRows maps a PAC first byte to the row pair it addresses; the low
// half of the second byte (0x40-0x5F) selects the first row of the pair.
// 0x10 addresses only row 11, from the high half.
var pacRows = [8][2]int{
	0x0: {0, 11},
	0x1: {1, 2},
	0x2: {3, 4},
	0x3: {12, 13},
	0x4: {14, 15},
	0x5: {5, 6},
	0x6: {7, 8},
	0x7: {9, 10},
}

// Channel is the CEA-608 state machine for one logical caption channel.
// It owns its Memory exclusively. Control codes are given in channel 1
// form: the decoder removes the channel 2 offset before dispatch.
type Channel struct {
	log    *slog.Logger
	num    int
	mode   Mode
	rollUp int
	mem    *Memory
}

// NewChannel creates channel num (1 or 2). If log is nil, slog.Default()
// is used.
func NewChannel(num int, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		log: log.With("channel", num),
		num: num,
		mem: NewMemory(),
	}
}

// Number returns the channel number, 1 or 2.
func (c *Channel) Number() int { return c.num }

// Mode returns the current caption mode.
func (c *Channel) Mode() Mode { return c.mode }

// RollUpRows returns the roll-up window height set by the last RU2-RU4
// code, or 0 if none was received.
func (c *Channel) RollUpRows() int { return c.rollUp }

// Memory returns the channel's caption memory.
func (c *Channel) Memory() *Memory { return c.mem }

// Render returns the displayed grid as text.
func (c *Channel) Render() string { return c.mem.Render() }

// writeTarget is the buffer that receives characters in the current mode.
func (c *Channel) writeTarget() Buffer {
	if c.mode == ModePopOn {
		return NonDisplayed
	}
	return Displayed
}

func (c *Channel) put(r rune) {
	c.mem.Write(c.writeTarget(), r)
}

// HandleCharacter writes one basic character (0x20-0x7F) at the cursor.
func (c *Channel) HandleCharacter(b byte) error {
	if b < 0x20 {
		return fmt.Errorf("%w: 0x%02X", ErrNonPrinting, b)
	}
	r, err := Standard(b)
	if err != nil {
		return err
	}
	c.put(r)
	return nil
}

// HandleControl interprets one control code pair. Returned errors wrap
// one of the package sentinels; soft errors leave the channel in the
// state documented for that code.
func (c *Channel) HandleControl(first, second byte) error {
	switch {
	case first == 0x11 && second >= 0x30 && second <= 0x3F:
		r, err := Special(second)
		if err != nil {
			return err
		}
		c.put(r)
		return nil

	case (first == 0x12 || first == 0x13) && second >= 0x20 && second <= 0x3F:
		r, err := Extended(first, second)
		if err != nil {
			return err
		}
		c.put(r)
		return nil

	case second >= 0x40 && second <= 0x7F:
		return c.preambleAddress(first, second)

	case first == 0x11 && second >= 0x20 && second <= 0x2F:
		c.log.Debug("ignoring mid-row code", "code", fmt.Sprintf("%02x%02x", first, second))
		c.put(' ')
		return nil
	}

	switch first {
	case 0x14:
		return c.miscControl(second)
	case 0x17:
		if second >= 0x21 && second <= 0x23 {
			c.mem.Advance(int(second - 0x20))
			return nil
		}
	}
	return fmt.Errorf("%w: %02x%02x", ErrUnknownControlCode, first, second)
}

func (c *Channel) preambleAddress(first, second byte) error {
	if first < 0x10 || first > 0x17 || (first == 0x10 && second < 0x60) {
		return fmt.Errorf("%w: %02x%02x", ErrInvalidPAC, first, second)
	}
	pair := pacRows[first-0x10]
	row := pair[0]
	if second >= 0x60 {
		row = pair[1]
	}

	// Style PACs move to the row and keep the column.
	_, column := c.mem.Cursor()
	if second&0x10 != 0 {
		column = 1 + int(second&0x0F)>>1<<2
	} else {
		c.log.Debug("ignoring color/underline/italics", "code", fmt.Sprintf("%02x%02x", first, second))
	}
	return c.mem.MoveCursor(row, column)
}

func (c *Channel) miscControl(second byte) error {
	switch second {
	case 0x20: // resume caption loading
		c.mode = ModePopOn
	case 0x21:
		return fmt.Errorf("%w: backspace", ErrUnsupportedFeature)
	case 0x24:
		return fmt.Errorf("%w: delete to end of row", ErrUnsupportedFeature)
	case 0x25, 0x26, 0x27:
		c.rollUp = int(second - 0x23)
		if c.mode != ModeRollUp {
			c.mode = ModeRollUp
			_ = c.mem.MoveCursor(Rows, 1)
		}
		return fmt.Errorf("%w: roll-up captions (%d rows)", ErrUnsupportedFeature, c.rollUp)
	case 0x28:
		c.log.Debug("ignoring flash on")
		c.put(' ')
	case 0x29: // resume direct captioning
		c.mode = ModePaintOn
	case 0x2A:
		return fmt.Errorf("%w: text restart", ErrUnsupportedFeature)
	case 0x2B:
		return fmt.Errorf("%w: resume text display", ErrUnsupportedFeature)
	case 0x2C:
		c.mem.Erase(Displayed)
	case 0x2D:
		if c.mode == ModeRollUp {
			return fmt.Errorf("%w: roll-up carriage return", ErrUnsupportedFeature)
		}
	case 0x2E:
		c.mem.Erase(NonDisplayed)
	case 0x2F: // end of caption
		c.mode = ModePopOn
		c.mem.Swap()
	default:
		return fmt.Errorf("%w: 14%02x", ErrUnknownControlCode, second)
	}
	return nil
}
