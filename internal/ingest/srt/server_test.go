package srt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/zsiec/cc608/internal/ingest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStreamKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		streamID string
		want     string
	}{
		{name: "simple key", streamID: "camera1", want: "camera1"},
		{name: "leading slash", streamID: "/camera1", want: "camera1"},
		{name: "live prefix", streamID: "live/camera1", want: "camera1"},
		{name: "slash and live prefix", streamID: "/live/camera1", want: "camera1"},
		{name: "empty returns default", streamID: "", want: "default"},
		{name: "just slash returns default", streamID: "/", want: "default"},
		{name: "just live/ returns default", streamID: "live/", want: "default"},
		{name: "nested path preserved", streamID: "studio/camera1", want: "studio/camera1"},
		{name: "live in name preserved", streamID: "liveshow", want: "liveshow"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := StreamKey(tc.streamID); got != tc.want {
				t.Errorf("StreamKey(%q) = %q, want %q", tc.streamID, got, tc.want)
			}
		})
	}
}

type chunkReader struct {
	chunks [][]byte
	err    error
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, c.err
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

func TestCopyStream(t *testing.T) {
	t.Parallel()

	r := ingest.NewRegistry(nil)
	stream, w, err := r.Register("cam")
	if err != nil {
		t.Fatal(err)
	}

	src := &chunkReader{chunks: [][]byte{make([]byte, 188), make([]byte, 376)}, err: io.EOF}
	got := make(chan int, 1)
	go func() {
		b, _ := io.ReadAll(stream.Input())
		got <- len(b)
	}()

	copyStream(context.Background(), quietLogger(), src, stream, w)
	r.Unregister("cam")

	if n := <-got; n != 564 {
		t.Errorf("piped %d bytes, want 564", n)
	}
	stats := stream.IngestStats()
	if stats.BytesReceived != 564 || stats.ReadCount != 2 {
		t.Errorf("stats = %d bytes / %d reads, want 564 / 2", stats.BytesReceived, stats.ReadCount)
	}
}

func TestCopyStreamStopsOnAbort(t *testing.T) {
	t.Parallel()

	r := ingest.NewRegistry(nil)
	stream, w, _ := r.Register("cam")
	stream.Abort(errors.New("decoder gone"))

	src := &chunkReader{chunks: [][]byte{{0x47}, {0x47}, {0x47}}, err: io.EOF}
	copyStream(context.Background(), quietLogger(), src, stream, w)

	if got := stream.IngestStats().ReadCount; got != 1 {
		t.Errorf("reads = %d, want 1 (stop after first failed write)", got)
	}
}

func TestCopyStreamHonoursContext(t *testing.T) {
	t.Parallel()

	r := ingest.NewRegistry(nil)
	stream, w, _ := r.Register("cam")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	copyStream(ctx, quietLogger(), &chunkReader{chunks: [][]byte{{0x47}}}, stream, w)
	if got := stream.IngestStats().ReadCount; got != 0 {
		t.Errorf("reads = %d after cancel, want 0", got)
	}
}

func TestCallerValidation(t *testing.T) {
	t.Parallel()

	c := NewCaller(ingest.NewRegistry(nil), quietLogger())
	if err := c.Pull(context.Background(), PullRequest{}); !errors.Is(err, ErrAddressRequired) {
		t.Errorf("Pull without address err = %v, want ErrAddressRequired", err)
	}
	if err := c.Stop("missing"); !errors.Is(err, ErrNoPull) {
		t.Errorf("Stop(missing) err = %v, want ErrNoPull", err)
	}
	if got := c.ActivePulls(); len(got) != 0 {
		t.Errorf("ActivePulls = %v, want none", got)
	}
}
