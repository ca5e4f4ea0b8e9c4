package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/internal/tstest"
)

const helloSCC = "Scenarist_SCC V1.0\n\n" +
	"00:00:00:00\t9420 9420 94ae 94ae 9452 9452 97a2 97a2 c8e5 ecec ef80 942f 942f\n\n" +
	"00:00:02:00\t942c 942c\n"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
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

type countingStats struct{ cues, snaps int }

func (c *countingStats) RecordCue()      { c.cues++ }
func (c *countingStats) RecordSnapshot() { c.snaps++ }

func row(s cea608.Snapshot, n int) string {
	return strings.TrimRight(strings.Split(s.Text, "\n")[n-1], " ")
}

func newSource(t *testing.T, data []byte, name string) (Source, Kind) {
	t.Helper()
	src, kind, closer, err := NewSource(context.Background(), bytes.NewReader(data), name, SourceOptions{Log: quietLogger()})
	if err != nil {
		t.Fatalf("NewSource(%s): %v", name, err)
	}
	t.Cleanup(func() { closer.Close() })
	return src, kind
}

func run(t *testing.T, src Source, opts ...func(*Pipeline)) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	p := New("test", src, sink, append([]func(*Pipeline){PipelineOptLogger(quietLogger())}, opts...)...)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
	return sink
}

func popOnHI() []byte {
	s := tstest.NewStream(tstest.StreamTypeH264)
	var frames [][]tstest.Triplet
	frames = append(frames, tstest.Control(0x14, 0x20)...)
	frames = append(frames, tstest.Control(0x11, 0x40)...)
	frames = append(frames, tstest.Text("HI")...)
	frames = append(frames, tstest.Control(0x14, 0x2F)...)
	for i, f := range frames {
		s.CaptionFrame(int64(i+1)*3003, f...)
	}
	return s.Bytes()
}

func TestRunSCC(t *testing.T) {
	t.Parallel()
	src, kind := newSource(t, []byte(helloSCC), "hello.scc")
	if kind != KindSCC {
		t.Fatalf("kind = %v, want scc", kind)
	}
	stats := &countingStats{}
	sink := run(t, src, PipelineOptStats(stats))

	if len(sink.snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(sink.snaps))
	}
	if got := row(sink.snaps[0], 14); got != "      Hello" {
		t.Errorf("row 14 = %q, want %q", got, "      Hello")
	}
	if got := sink.snaps[1].Seconds(); got != 2 {
		t.Errorf("second snapshot time = %v, want 2", got)
	}
	if strings.TrimSpace(sink.snaps[1].Text) != "" {
		t.Error("EDM did not blank the display")
	}
	if stats.cues != 2 || stats.snaps != 2 {
		t.Errorf("stats = %+v, want 2 cues 2 snapshots", *stats)
	}
}

func TestRunTS(t *testing.T) {
	t.Parallel()
	src, kind := newSource(t, popOnHI(), "feed.bin")
	if kind != KindTS {
		t.Fatalf("kind = %v, want mpegts", kind)
	}
	sink := &recordingSink{}
	p := New("feed", src, sink, PipelineOptLogger(quietLogger()))
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.Cues() != 4 || p.Snapshots() != 4 {
		t.Fatalf("cues/snapshots = %d/%d, want 4/4", p.Cues(), p.Snapshots())
	}
	if p.LastCue() != 3 {
		t.Errorf("LastCue = %d, want 3", p.LastCue())
	}
	last := sink.snaps[len(sink.snaps)-1]
	if got := row(last, 1); got != "HI" {
		t.Errorf("row 1 = %q, want HI", got)
	}
	if got := row(sink.snaps[2], 1); got != "" {
		t.Errorf("text visible before EOC: %q", got)
	}
}

func TestCompressedInputs(t *testing.T) {
	t.Parallel()

	var zbuf bytes.Buffer
	zw, err := zstd.NewWriter(&zbuf)
	if err != nil {
		t.Fatal(err)
	}
	zw.Write([]byte(helloSCC))
	zw.Close()

	var gbuf bytes.Buffer
	gw := gzip.NewWriter(&gbuf)
	gw.Write(popOnHI())
	gw.Close()

	tests := []struct {
		name      string
		data      []byte
		kind      Kind
		snapshots int
	}{
		{"captions.scc.zst", zbuf.Bytes(), KindSCC, 2},
		{"feed.ts.gz", gbuf.Bytes(), KindTS, 4},
	}
	for _, tt := range tests {
		src, kind := newSource(t, tt.data, tt.name)
		if kind != tt.kind {
			t.Errorf("%s: kind = %v, want %v", tt.name, kind, tt.kind)
			continue
		}
		if got := len(run(t, src).snaps); got != tt.snapshots {
			t.Errorf("%s: snapshots = %d, want %d", tt.name, got, tt.snapshots)
		}
	}
}

func TestSniff(t *testing.T) {
	t.Parallel()

	pkt := bytes.Repeat([]byte{0xFF}, 188)
	pkt[0] = 0x47
	m2ts := append(append([]byte{0, 0, 0, 0}, pkt...), append([]byte{0, 0, 0, 1}, pkt...)...)
	rs := append(append(append([]byte{}, pkt...), make([]byte, 16)...), pkt...)

	tests := []struct {
		name string
		data []byte
		kind Kind
		size int
	}{
		{"a.bin", append(append([]byte{}, pkt...), pkt...), KindTS, 188},
		{"a.bin", pkt[:100], KindTS, 188},
		{"a.bin", m2ts, KindTS, 192},
		{"a.bin", rs, KindTS, 204},
		{"a.ts", []byte("Scenarist_SCC V1.0\n"), KindSCC, 0},
		{"a.ts", nil, KindTS, 188},
		{"a.M2TS", nil, KindTS, 192},
		{"a.scc", nil, KindSCC, 0},
		{"a", []byte("00:00:00:00\t9420\n"), KindSCC, 0},
	}
	for _, tt := range tests {
		kind, size := sniff(bufioReader(tt.data), tt.name)
		if kind != tt.kind || size != tt.size {
			t.Errorf("sniff(%s, %d bytes) = %v/%d, want %v/%d", tt.name, len(tt.data), kind, size, tt.kind, tt.size)
		}
	}
}

func TestRunStrictAborts(t *testing.T) {
	t.Parallel()
	scc := "Scenarist_SCC V1.0\n\n00:00:00:00\t9420 94a1 c180\n\n00:00:01:00\t942f\n"
	src, _ := newSource(t, []byte(scc), "bs.scc")

	sink := &recordingSink{}
	p := New("strict", src, sink,
		PipelineOptLogger(quietLogger()),
		PipelineOptDiagnostics(func(d *cea608.Diagnostic) error {
			if d.Category == cea608.CategoryUnsupportedFeature {
				return d
			}
			return nil
		}))
	err := p.Run(context.Background())
	if !errors.Is(err, cea608.ErrUnsupportedFeature) {
		t.Fatalf("err = %v, want ErrUnsupportedFeature", err)
	}
	if len(sink.snaps) != 0 {
		t.Errorf("snapshots = %d, want 0", len(sink.snaps))
	}
	if !sink.closed {
		t.Error("sink not closed after abort")
	}
}

func TestRunSinkError(t *testing.T) {
	t.Parallel()
	src, _ := newSource(t, []byte(helloSCC), "hello.scc")
	full := errors.New("no space left on device")
	p := New("x", src, &recordingSink{err: full}, PipelineOptLogger(quietLogger()))
	if err := p.Run(context.Background()); !errors.Is(err, full) {
		t.Fatalf("err = %v, want sink error", err)
	}
}

type failingSource struct{ err error }

func (f failingSource) Next() (cea608.Cue, error) { return cea608.Cue{}, f.err }

func TestRunSourceError(t *testing.T) {
	t.Parallel()
	broken := errors.New("connection reset")
	p := New("x", failingSource{broken}, &recordingSink{}, PipelineOptLogger(quietLogger()))
	if err := p.Run(context.Background()); !errors.Is(err, broken) {
		t.Fatalf("err = %v, want source error", err)
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	src, _ := newSource(t, []byte(helloSCC), "hello.scc")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	p := New("x", src, sink, PipelineOptLogger(quietLogger()))
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if len(sink.snaps) != 0 || !sink.closed {
		t.Errorf("snapshots = %d closed = %v, want 0 and closed", len(sink.snaps), sink.closed)
	}
}

func TestOpenFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "hello.scc")
	if err := os.WriteFile(path, []byte(helloSCC), 0o644); err != nil {
		t.Fatal(err)
	}
	src, kind, closer, err := Open(context.Background(), path, SourceOptions{Log: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	if kind != KindSCC {
		t.Errorf("kind = %v, want scc", kind)
	}
	cues, err := Collect(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(cues) != 2 {
		t.Errorf("cues = %d, want 2", len(cues))
	}

	if _, _, _, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.scc"), SourceOptions{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
}

func TestNewSourceBadField(t *testing.T) {
	t.Parallel()
	_, _, _, err := NewSource(context.Background(), bytes.NewReader(popOnHI()), "a.ts", SourceOptions{Log: quietLogger(), Field: 3})
	if err == nil {
		t.Fatal("field 3 accepted")
	}
}

func bufioReader(b []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(b))
}
