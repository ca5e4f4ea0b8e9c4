package cea608

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
)

// Channel numbers.
const (
	Channel1 = 1
	Channel2 = 2
)

// Cue is one timestamped unit of raw caption bytes, parity bits included.
// Time is in seconds and must not be modified after the cue is created.
type Cue struct {
	Time      *big.Rat
	DropFrame bool
	Data      []byte
}

// Seconds returns the cue time as a float, or 0 when Time is nil.
func (c Cue) Seconds() float64 {
	if c.Time == nil {
		return 0
	}
	f, _ := c.Time.Float64()
	return f
}

// Snapshot is the rendered state of the last active channel after a cue.
type Snapshot struct {
	Cue     int
	Time    *big.Rat
	Channel int
	Text    string
}

// Seconds returns the snapshot time as a float, or 0 when Time is nil.
func (s Snapshot) Seconds() float64 {
	return Cue{Time: s.Time}.Seconds()
}

// Decoder drives CEA-608 decoding across an ordered sequence of cues. It
// holds the session state: both channels, the current channel selection
// and the cue counter. A Decoder is not safe for concurrent use.
type Decoder struct {
	log      *slog.Logger
	channels [2]*Channel
	current  *Channel
	cues     int
	onDiag   DiagnosticHandler
}

// DecoderOptLogger sets the logger. The default is slog.Default().
func DecoderOptLogger(log *slog.Logger) func(*Decoder) {
	return func(d *Decoder) {
		if log != nil {
			d.log = log
		}
	}
}

// DecoderOptDiagnostics installs a diagnostic handler. The default handler
// logs each diagnostic and never aborts.
func DecoderOptDiagnostics(h DiagnosticHandler) func(*Decoder) {
	return func(d *Decoder) {
		d.onDiag = h
	}
}

// NewDecoder creates a decoder session with two fresh channels.
func NewDecoder(opts ...func(*Decoder)) *Decoder {
	d := &Decoder{log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "cea608")
	if d.onDiag == nil {
		d.onDiag = LogDiagnostics(d.log)
	}
	d.channels[0] = NewChannel(Channel1, d.log)
	d.channels[1] = NewChannel(Channel2, d.log)
	return d
}

// LogDiagnostics returns a handler that logs every diagnostic to log and
// never aborts. Non-printing bytes log at Info, everything else at Warn.
func LogDiagnostics(log *slog.Logger) DiagnosticHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(d *Diagnostic) error {
		level := slog.LevelWarn
		if d.Category == CategoryNonPrinting {
			level = slog.LevelInfo
		}
		log.Log(context.Background(), level, d.Err.Error(),
			"category", d.Category.String(),
			"pair", d.PairHex(),
			"channel", d.Channel,
			"cue", d.Cue,
		)
		return nil
	}
}

// Channel returns channel n (1 or 2), or nil for any other n.
func (d *Decoder) Channel(n int) *Channel {
	if n != Channel1 && n != Channel2 {
		return nil
	}
	return d.channels[n-1]
}

// Current returns the channel selected by the most recent control code,
// or nil if none has been seen.
func (d *Decoder) Current() *Channel {
	return d.current
}

// Decode processes cues in order and returns one snapshot per cue that
// ends with a selected channel. It fails only on a character table gap
// or when the diagnostic handler aborts.
func (d *Decoder) Decode(cues []Cue) ([]Snapshot, error) {
	snaps := make([]Snapshot, 0, len(cues))
	for _, cue := range cues {
		snap, ok, err := d.DecodeCue(cue)
		if err != nil {
			return snaps, err
		}
		if ok {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}

// DecodeCue processes the byte pairs of one cue. ok is false when no
// channel has been selected yet, in which case there is nothing to render.
func (d *Decoder) DecodeCue(cue Cue) (snap Snapshot, ok bool, err error) {
	idx := d.cues
	d.cues++

	data := cue.Data
	for i := 0; i+1 < len(data); i += 2 {
		if err := d.decodePair(idx, data, i); err != nil {
			return Snapshot{}, false, err
		}
	}

	if d.current == nil {
		return Snapshot{}, false, nil
	}
	return Snapshot{
		Cue:     idx,
		Time:    cue.Time,
		Channel: d.current.Number(),
		Text:    d.current.Render(),
	}, true, nil
}

// decodePair handles the pair at data[i:i+2]. The whole cue buffer is
// passed so a control code can be compared with the pair before it.
func (d *Decoder) decodePair(cue int, data []byte, i int) error {
	raw := [2]byte{data[i], data[i+1]}
	first, ok1 := StripParity(raw[0])
	second, ok2 := StripParity(raw[1])
	if !ok1 || !ok2 {
		return d.report(cue, raw, 0, ErrParity)
	}

	if first >= 0x10 && first <= 0x1F && second >= 0x20 && second <= 0x7F {
		if i >= 2 && data[i] == data[i-2] && data[i+1] == data[i-1] {
			// Control codes are transmitted twice for robustness.
			return nil
		}
		if first < 0x18 {
			d.current = d.channels[0]
		} else {
			d.current = d.channels[1]
			first -= 8
		}
		return d.dispatch(cue, raw, d.current.HandleControl(first, second))
	}

	if d.current == nil {
		return d.report(cue, raw, 0, ErrNoActiveChannel)
	}
	if first == 0x00 && second == 0x00 {
		return nil
	}
	for _, b := range [2]byte{first, second} {
		if b == 0x00 {
			continue
		}
		if err := d.dispatch(cue, raw, d.current.HandleCharacter(b)); err != nil {
			return err
		}
	}
	return nil
}

// dispatch routes a channel error: hard errors are returned, soft ones
// go to the diagnostic handler.
func (d *Decoder) dispatch(cue int, raw [2]byte, err error) error {
	if err == nil {
		return nil
	}
	ch := 0
	if d.current != nil {
		ch = d.current.Number()
	}
	if _, soft := categoryOf(err); !soft {
		return fmt.Errorf("cue %d pair %02x%02x: %w", cue, raw[0], raw[1], err)
	}
	return d.report(cue, raw, ch, err)
}

func (d *Decoder) report(cue int, raw [2]byte, ch int, err error) error {
	cat, _ := categoryOf(err)
	diag := &Diagnostic{
		Category: cat,
		Pair:     raw,
		Channel:  ch,
		Cue:      cue,
		Err:      err,
	}
	return d.onDiag(diag)
}
