package output

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/internal/moq"
)

// priorityCaptions is the publisher priority of the caption subgroup.
const priorityCaptions = 1

// MoQSink frames each snapshot as one object of a MoQ subgroup stream.
// The payload is the JSON record; the capture timestamp extension
// carries the snapshot time in microseconds.
type MoQSink struct {
	w     *moq.Writer
	bytes int64
}

func NewMoQSink(w io.Writer, trackAlias, groupID uint64) *MoQSink {
	return &MoQSink{w: moq.NewWriter(w, trackAlias, groupID, priorityCaptions)}
}

func (m *MoQSink) WriteSnapshot(s cea608.Snapshot) error {
	payload, err := json.Marshal(NewRecord("", s))
	if err != nil {
		return fmt.Errorf("output: marshal snapshot: %w", err)
	}
	n, err := m.w.WriteObject(micros(s.Time), payload)
	m.bytes += n
	return err
}

// BytesWritten reports the framed bytes written so far.
func (m *MoQSink) BytesWritten() int64 { return m.bytes }

func (m *MoQSink) Close() error { return nil }

var million = big.NewInt(1_000_000)

// micros truncates t to whole microseconds. Nil and negative times map
// to zero.
func micros(t *big.Rat) uint64 {
	if t == nil || t.Sign() < 0 {
		return 0
	}
	n := new(big.Int).Mul(t.Num(), million)
	n.Quo(n, t.Denom())
	return n.Uint64()
}
