package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/zsiec/ccx"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/internal/mpegts"
)

// Caption fields of A/53 cc_data. Field 1 carries CC1 and CC2, field 2
// carries CC3 and CC4.
const (
	Field1 = 1
	Field2 = 2
)

// ErrField is returned by NewExtractor for a field other than 1 or 2.
var ErrField = errors.New("demux: caption field must be 1 or 2")

// StatsRecorder receives extraction telemetry. internal/metrics
// implements it.
type StatsRecorder interface {
	RecordVideoCodec(codec string)
	RecordAccessUnit()
	RecordCaptionPairs(field, n int)
}

// Extractor produces one cue per video access unit that carries caption
// data for the selected field. Cue times are PTS / 90000 seconds.
type Extractor struct {
	log   *slog.Logger
	src   *mpegts.Reader
	field int
	stats StatsRecorder

	readerOpts []func(*mpegts.Reader)

	codecSeen bool
	units     int64
	lastTime  *big.Rat

	// Broadcasters send each control code twice in consecutive frames.
	lastCtrl     [2]byte
	lastWasCtrl  bool
	lastCtrlUnit int64
}

// ExtractorOptLogger sets the logger. The default is slog.Default().
func ExtractorOptLogger(log *slog.Logger) func(*Extractor) {
	return func(e *Extractor) {
		if log != nil {
			e.log = log
		}
	}
}

// ExtractorOptField selects the caption field (Field1 or Field2). The
// default is Field1.
func ExtractorOptField(field int) func(*Extractor) {
	return func(e *Extractor) {
		e.field = field
	}
}

// ExtractorOptStats installs a telemetry recorder.
func ExtractorOptStats(s StatsRecorder) func(*Extractor) {
	return func(e *Extractor) {
		e.stats = s
	}
}

// ExtractorOptPacketSize sets the transport packet size (188, 192 or 204).
func ExtractorOptPacketSize(size int) func(*Extractor) {
	return func(e *Extractor) {
		e.readerOpts = append(e.readerOpts, mpegts.ReaderOptPacketSize(size))
	}
}

// NewExtractor creates an Extractor reading a transport stream from src.
func NewExtractor(ctx context.Context, src io.Reader, opts ...func(*Extractor)) (*Extractor, error) {
	e := &Extractor{
		log:      slog.Default(),
		field:    Field1,
		lastTime: new(big.Rat),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.field != Field1 && e.field != Field2 {
		return nil, fmt.Errorf("%w (got %d)", ErrField, e.field)
	}
	e.log = e.log.With("component", "demux", "field", e.field)
	e.src = mpegts.NewReader(ctx, src, append([]func(*mpegts.Reader){mpegts.ReaderOptLogger(e.log)}, e.readerOpts...)...)
	return e, nil
}

// Next returns the next cue. It returns io.EOF at the end of the stream.
func (e *Extractor) Next() (cea608.Cue, error) {
	for {
		au, err := e.src.Next()
		if err != nil {
			return cea608.Cue{}, err
		}
		if cue, ok := e.cueFrom(au); ok {
			return cue, nil
		}
	}
}

// All reads the stream to the end and returns every cue.
func (e *Extractor) All() ([]cea608.Cue, error) {
	var cues []cea608.Cue
	for {
		cue, err := e.Next()
		if errors.Is(err, io.EOF) {
			return cues, nil
		}
		if err != nil {
			return cues, err
		}
		cues = append(cues, cue)
	}
}

func (e *Extractor) cueFrom(au *mpegts.AccessUnit) (cea608.Cue, bool) {
	e.units++
	if e.stats != nil {
		if !e.codecSeen {
			e.stats.RecordVideoCodec(au.Stream.Codec())
		}
		e.stats.RecordAccessUnit()
	}
	e.codecSeen = true

	hevc := au.Stream.StreamType == mpegts.StreamTypeH265
	var nals []NALUnit
	if hevc {
		nals = ParseAnnexBHEVC(au.Data)
	} else {
		nals = ParseAnnexB(au.Data)
	}

	var data []byte
	pairs := 0
	for _, nal := range nals {
		if !isCaptionSEI(hevc, nal) {
			continue
		}
		cd := ccx.ExtractCaptions(nal.Data)
		if cd == nil {
			continue
		}
		for _, pair := range cd.CC608Pairs {
			if int(pair.Field) != e.field-1 {
				continue
			}
			cc1, cc2 := pair.Data[0]&0x7F, pair.Data[1]&0x7F
			if cc1 == 0 && cc2 == 0 {
				continue
			}
			pairs++
			if e.repeatedControl(cc1, cc2) {
				continue
			}
			data = append(data, cea608.AddParity(cc1), cea608.AddParity(cc2))
		}
	}
	if pairs > 0 && e.stats != nil {
		e.stats.RecordCaptionPairs(e.field, pairs)
	}
	if len(data) == 0 {
		return cea608.Cue{}, false
	}

	t := e.lastTime
	if au.HasPTS {
		t = big.NewRat(au.PTS, mpegts.ClockRate)
		e.lastTime = t
	}
	return cea608.Cue{Time: t, Data: data}, true
}

// repeatedControl reports whether a control pair is the transmission
// repeat of the control pair sent at most two access units earlier.
func (e *Extractor) repeatedControl(cc1, cc2 byte) bool {
	if cc1 < 0x10 || cc1 > 0x1F {
		e.lastWasCtrl = false
		return false
	}
	cp := [2]byte{cc1, cc2}
	if e.lastWasCtrl && e.lastCtrl == cp && e.units-e.lastCtrlUnit <= 2 {
		e.lastWasCtrl = false
		return true
	}
	e.lastCtrl = cp
	e.lastWasCtrl = true
	e.lastCtrlUnit = e.units
	return false
}
