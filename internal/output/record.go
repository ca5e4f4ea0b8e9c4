package output

import (
	"strings"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/scc"
)

// Record is the serialized form of a snapshot shared by the json, moq,
// websocket and MQTT outputs.
type Record struct {
	Source   string   `json:"source,omitempty"`
	Cue      int      `json:"cue"`
	Time     float64  `json:"time"`
	Timecode string   `json:"timecode,omitempty"`
	Channel  int      `json:"channel"`
	Lines    []string `json:"lines"`
}

// NewRecord converts a snapshot. Timecode is empty when the snapshot
// time cannot be expressed as an SCC timecode.
func NewRecord(source string, s cea608.Snapshot) Record {
	tc, _ := scc.Timecode(s.Time, false)
	return Record{
		Source:   source,
		Cue:      s.Cue,
		Time:     s.Seconds(),
		Timecode: tc,
		Channel:  s.Channel,
		Lines:    strings.Split(s.Text, "\n"),
	}
}

// Text joins the lines back into the rendered grid.
func (r Record) Text() string {
	return strings.Join(r.Lines, "\n")
}
