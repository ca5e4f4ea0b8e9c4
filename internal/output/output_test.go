package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/internal/moq"
)

func gridText(rows map[int]string) string {
	lines := make([]string, cea608.Rows)
	for i := range lines {
		line := rows[i+1]
		if pad := cea608.Columns - len([]rune(line)); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func snapshot(cue int, t *big.Rat, rows map[int]string) cea608.Snapshot {
	return cea608.Snapshot{Cue: cue, Time: t, Channel: cea608.Channel1, Text: gridText(rows)}
}

type recordingSink struct {
	snaps  []cea608.Snapshot
	err    error
	closed bool
}

func (r *recordingSink) WriteSnapshot(s cea608.Snapshot) error {
	if r.err != nil {
		return r.err
	}
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Format
	}{
		{"text", FormatText},
		{"JSON", FormatJSON},
		{" moq ", FormatMoQ},
		{"", FormatText},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseFormat("srt"); !errors.Is(err, ErrFormat) {
		t.Errorf("ParseFormat(srt) err = %v, want ErrFormat", err)
	}
}

func TestParseEncoding(t *testing.T) {
	t.Parallel()
	got, err := ParseEncoding("Latin1")
	if err != nil {
		t.Fatal(err)
	}
	if got != charmap.ISO8859_1 {
		t.Errorf("latin1 = %v, want ISO8859_1", got)
	}
	for _, name := range []string{"", "utf-8", "windows-1252", "iso-8859-1", "cp437"} {
		if _, err := ParseEncoding(name); err != nil {
			t.Errorf("ParseEncoding(%q): %v", name, err)
		}
	}
	if _, err := ParseEncoding("ebcdic"); !errors.Is(err, ErrEncoding) {
		t.Errorf("ParseEncoding(ebcdic) err = %v, want ErrEncoding", err)
	}
}

func TestNewUnknownFormat(t *testing.T) {
	t.Parallel()
	if _, err := New(Format("xml"), io.Discard, Options{}); !errors.Is(err, ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

func TestTextSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink, err := New(FormatText, &buf, Options{Source: "a.scc"})
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteSnapshot(snapshot(3, big.NewRat(3, 2), map[int]string{15: "  HELLO"})); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(buf.String(), "\n")
	if lines[0] != "a.scc [00:00:01:15] cue 3 channel 1" {
		t.Errorf("header = %q", lines[0])
	}
	if got := len(lines); got != 1+cea608.Rows+2 {
		t.Fatalf("lines = %d, want %d", got, 1+cea608.Rows+2)
	}
	if got := strings.TrimRight(lines[15], " "); got != "  HELLO" {
		t.Errorf("row 15 = %q, want %q", got, "  HELLO")
	}
	if lines[16] != "" || lines[17] != "" {
		t.Errorf("block not terminated by a blank line: %q", lines[16:])
	}
}

func TestTextSinkNilTime(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := NewTextSink(&buf, "", nil)
	if err := sink.WriteSnapshot(snapshot(0, nil, nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "[--:--:--:--] cue 0 channel 1\n") {
		t.Errorf("header = %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}
}

func TestTextSinkLatin1(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := NewTextSink(&buf, "", charmap.ISO8859_1)
	if err := sink.WriteSnapshot(snapshot(0, big.NewRat(0, 1), map[int]string{1: "Ñ♪"})); err != nil {
		t.Fatal(err)
	}
	out := buf.Bytes()
	i := bytes.IndexByte(out, '\n')
	if i < 0 || len(out) < i+3 {
		t.Fatalf("short output %q", out)
	}
	if got := out[i+1]; got != 0xD1 {
		t.Errorf("Ñ encoded as 0x%02X, want 0xD1", got)
	}
	if got := out[i+2]; got != 0x1A {
		t.Errorf("♪ encoded as 0x%02X, want substitute 0x1A", got)
	}
	if got := len(out); got != i+1+cea608.Rows*(cea608.Columns+1)+1 {
		t.Errorf("encoded length = %d, want one byte per cell", got)
	}
}

func TestJSONSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink, _ := New(FormatJSON, &buf, Options{Source: "in.ts"})
	_ = sink.WriteSnapshot(snapshot(1, big.NewRat(3, 2), map[int]string{14: "<b>&"}))
	_ = sink.WriteSnapshot(snapshot(2, big.NewRat(2, 1), nil))
	raw := buf.String()

	dec := json.NewDecoder(&buf)
	var recs []Record
	for dec.More() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			t.Fatal(err)
		}
		recs = append(recs, r)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	r := recs[0]
	if r.Source != "in.ts" || r.Cue != 1 || r.Channel != 1 {
		t.Errorf("record = %+v", r)
	}
	if r.Time != 1.5 || r.Timecode != "00:00:01:15" {
		t.Errorf("time = %v %q, want 1.5 00:00:01:15", r.Time, r.Timecode)
	}
	if len(r.Lines) != cea608.Rows {
		t.Fatalf("lines = %d, want %d", len(r.Lines), cea608.Rows)
	}
	if got := strings.TrimSpace(r.Lines[13]); got != "<b>&" {
		t.Errorf("row 14 = %q", got)
	}
	if strings.Contains(raw, `\u003c`) {
		t.Error("HTML characters were escaped")
	}
	if r.Text() != gridText(map[int]string{14: "<b>&"}) {
		t.Error("Text() does not reproduce the grid")
	}
}

func TestMoQSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink, _ := New(FormatMoQ, &buf, Options{TrackAlias: 4, GroupID: 2})
	_ = sink.WriteSnapshot(snapshot(0, big.NewRat(16, 15), map[int]string{1: "A"}))
	_ = sink.WriteSnapshot(snapshot(1, big.NewRat(2, 1), map[int]string{1: "B"}))

	if got := sink.(*MoQSink).BytesWritten(); got != int64(buf.Len()) {
		t.Errorf("BytesWritten = %d, want %d", got, buf.Len())
	}

	r := moq.NewReader(&buf)
	hdr, err := r.Header()
	if err != nil {
		t.Fatal(err)
	}
	if hdr.TrackAlias != 4 || hdr.GroupID != 2 || hdr.Priority != priorityCaptions {
		t.Errorf("header = %+v", hdr)
	}

	wantMicros := []uint64{1066666, 2000000}
	for i, want := range wantMicros {
		obj, err := r.Next()
		if err != nil {
			t.Fatalf("object %d: %v", i, err)
		}
		if obj.ID != uint64(i) {
			t.Errorf("object %d id = %d", i, obj.ID)
		}
		if !obj.HasCaptureTime || obj.CaptureTime != want {
			t.Errorf("object %d capture = %d, want %d", i, obj.CaptureTime, want)
		}
		var rec Record
		if err := json.Unmarshal(obj.Payload, &rec); err != nil {
			t.Fatalf("object %d payload: %v", i, err)
		}
		if rec.Cue != i {
			t.Errorf("object %d cue = %d", i, rec.Cue)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("after last object err = %v, want io.EOF", err)
	}
}

func TestMicros(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   *big.Rat
		want uint64
	}{
		{nil, 0},
		{big.NewRat(-1, 1), 0},
		{big.NewRat(1001, 30000), 33366},
		{big.NewRat(90000, 90000), 1000000},
	}
	for _, tt := range tests {
		if got := micros(tt.in); got != tt.want {
			t.Errorf("micros(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestChangesOnly(t *testing.T) {
	t.Parallel()
	rec := &recordingSink{}
	sink := ChangesOnly(rec)

	a := snapshot(0, big.NewRat(0, 1), map[int]string{1: "A"})
	b := snapshot(2, big.NewRat(1, 1), map[int]string{1: "B"})
	steps := []cea608.Snapshot{a, a, b, b, a}
	for i := range steps {
		steps[i].Cue = i
		if err := sink.WriteSnapshot(steps[i]); err != nil {
			t.Fatal(err)
		}
	}
	other := a
	other.Channel = cea608.Channel2
	_ = sink.WriteSnapshot(other)

	var got []int
	for _, s := range rec.snaps {
		got = append(got, s.Cue)
	}
	want := []int{0, 2, 4, 0}
	if len(got) != len(want) {
		t.Fatalf("forwarded cues = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("forwarded cues = %v, want %v", got, want)
			break
		}
	}

	_ = sink.Close()
	if !rec.closed {
		t.Error("Close not forwarded")
	}
}

func TestTee(t *testing.T) {
	t.Parallel()
	first := &recordingSink{}
	failing := &recordingSink{err: errors.New("disk full")}
	last := &recordingSink{}
	sink := Tee(first, failing, last)

	err := sink.WriteSnapshot(snapshot(0, nil, nil))
	if err == nil || err.Error() != "disk full" {
		t.Errorf("err = %v, want disk full", err)
	}
	if len(first.snaps) != 1 || len(last.snaps) != 0 {
		t.Errorf("writes = %d,%d, want 1,0", len(first.snaps), len(last.snaps))
	}
	_ = sink.Close()
	if !first.closed || !failing.closed || !last.closed {
		t.Error("Close not forwarded to every sink")
	}
}

func TestSynchronized(t *testing.T) {
	t.Parallel()
	var (
		buf bytes.Buffer
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	a := Synchronized(NewJSONSink(&buf, "a"), &mu)
	b := Synchronized(NewJSONSink(&buf, "b"), &mu)
	for _, s := range []Sink{a, b} {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.WriteSnapshot(snapshot(i, big.NewRat(int64(i), 1), nil))
			}
		}(s)
	}
	wg.Wait()

	dec := json.NewDecoder(&buf)
	counts := map[string]int{}
	for dec.More() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("interleaved output: %v", err)
		}
		counts[r.Source]++
	}
	if counts["a"] != 50 || counts["b"] != 50 {
		t.Errorf("records per source = %v, want 50 each", counts)
	}
}
