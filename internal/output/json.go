package output

import (
	"encoding/json"
	"io"

	"github.com/zsiec/cc608/cea608"
)

// JSONSink writes one JSON object per line.
type JSONSink struct {
	enc    *json.Encoder
	source string
}

func NewJSONSink(w io.Writer, source string) *JSONSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONSink{enc: enc, source: source}
}

func (j *JSONSink) WriteSnapshot(s cea608.Snapshot) error {
	return j.enc.Encode(NewRecord(j.source, s))
}

func (j *JSONSink) Close() error { return nil }
