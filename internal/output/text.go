package output

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/scc"
)

// TextSink writes each snapshot as a header line followed by the 15-row
// grid and a blank line. Characters the encoding cannot represent are
// replaced with the encoding's substitute byte.
type TextSink struct {
	w      io.Writer
	source string
	enc    *encoding.Encoder
}

// NewTextSink returns a text sink. A nil enc writes UTF-8.
func NewTextSink(w io.Writer, source string, enc encoding.Encoding) *TextSink {
	s := &TextSink{w: w, source: source}
	if enc != nil {
		s.enc = encoding.ReplaceUnsupported(enc.NewEncoder())
	}
	return s
}

func (t *TextSink) WriteSnapshot(s cea608.Snapshot) error {
	tc, err := scc.Timecode(s.Time, false)
	if err != nil {
		tc = "--:--:--:--"
	}
	header := fmt.Sprintf("[%s] cue %d channel %d", tc, s.Cue, s.Channel)
	if t.source != "" {
		header = t.source + " " + header
	}
	block := header + "\n" + s.Text + "\n\n"
	if t.enc == nil {
		_, err = io.WriteString(t.w, block)
		return err
	}
	b, err := t.enc.Bytes([]byte(block))
	if err != nil {
		return fmt.Errorf("output: encoding snapshot: %w", err)
	}
	_, err = t.w.Write(b)
	return err
}

func (t *TextSink) Close() error { return nil }
