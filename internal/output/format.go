package output

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/zsiec/cc608/cea608"
)

// Format selects the rendering of snapshots.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatMoQ  Format = "moq"
)

var (
	ErrFormat   = errors.New("output: unknown format")
	ErrEncoding = errors.New("output: unknown encoding")
)

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatMoQ:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrFormat, s)
}

var encodings = map[string]encoding.Encoding{
	"utf-8":        unicode.UTF8,
	"utf8":         unicode.UTF8,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"cp437":        charmap.CodePage437,
}

// ParseEncoding maps a character encoding name to an encoding. The empty
// name is UTF-8.
func ParseEncoding(s string) (encoding.Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return unicode.UTF8, nil
	}
	if enc, ok := encodings[name]; ok {
		return enc, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrEncoding, s)
}

// Sink consumes snapshots. Close flushes buffered output; it does not
// close an underlying writer.
type Sink interface {
	WriteSnapshot(s cea608.Snapshot) error
	Close() error
}

// Options configures the sinks built by New.
type Options struct {
	// Encoding applies to the text format only; nil means UTF-8.
	Encoding encoding.Encoding
	// Source labels the input the snapshots came from.
	Source string
	// TrackAlias and GroupID address the moq subgroup stream.
	TrackAlias uint64
	GroupID    uint64
}

// New returns a sink writing format f to w.
func New(f Format, w io.Writer, opts Options) (Sink, error) {
	switch f {
	case FormatText:
		return NewTextSink(w, opts.Source, opts.Encoding), nil
	case FormatJSON:
		return NewJSONSink(w, opts.Source), nil
	case FormatMoQ:
		return NewMoQSink(w, opts.TrackAlias, opts.GroupID), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrFormat, f)
}
