package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/internal/demux"
	"github.com/zsiec/cc608/scc"
)

// Source yields cues in stream order and returns io.EOF after the last.
type Source interface {
	Next() (cea608.Cue, error)
}

// Kind is the container of an input.
type Kind int

const (
	KindSCC Kind = iota
	KindTS
)

func (k Kind) String() string {
	if k == KindTS {
		return "mpegts"
	}
	return "scc"
}

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	gzipMagic = []byte{0x1F, 0x8B}
)

// SourceOptions configures sources built by Open and NewSource.
type SourceOptions struct {
	Log *slog.Logger
	// Field selects the A/53 caption field of MPEG-TS input (1 or 2).
	Field int
	Stats demux.StatsRecorder
}

// Cues returns a Source over an in-memory cue list.
func Cues(cues []cea608.Cue) Source {
	return &cueSlice{cues: cues}
}

type cueSlice struct {
	cues []cea608.Cue
	next int
}

func (c *cueSlice) Next() (cea608.Cue, error) {
	if c.next >= len(c.cues) {
		return cea608.Cue{}, io.EOF
	}
	c.next++
	return c.cues[c.next-1], nil
}

// Open opens a caption file. The returned closer releases the file and
// any decompressor.
func Open(ctx context.Context, path string, opts SourceOptions) (Source, Kind, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, err
	}
	src, kind, closer, err := NewSource(ctx, f, path, opts)
	if err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	return src, kind, closers{closer, f}, nil
}

// NewSource builds a cue source from r. zstd and gzip input is
// decompressed transparently. The container is recognised from its
// first bytes, falling back to the extension of name: .ts, .mts, .m2ts
// and .trp are MPEG-TS, anything else is SCC. SCC input is parsed
// eagerly; MPEG-TS is read as cues are requested.
func NewSource(ctx context.Context, r io.Reader, name string, opts SourceOptions) (Source, Kind, io.Closer, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	br := bufio.NewReaderSize(r, 64*1024)
	head, _ := br.Peek(4)
	var closer io.Closer = nopCloser{}
	var body io.Reader = br
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("pipeline: zstd %s: %w", name, err)
		}
		body, closer = zr, zstdCloser{zr}
		name = strings.TrimSuffix(name, ".zst")
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("pipeline: gzip %s: %w", name, err)
		}
		body, closer = zr, zr
		name = strings.TrimSuffix(name, ".gz")
	}

	br = bufio.NewReaderSize(body, 64*1024)
	kind, pktSize := sniff(br, name)
	log.Debug("opened input", "name", name, "kind", kind, "packet_size", pktSize)

	if kind == KindSCC {
		cues, err := scc.Parse(br)
		if err != nil {
			closer.Close()
			return nil, 0, nil, err
		}
		return Cues(cues), KindSCC, closer, nil
	}

	dopts := []func(*demux.Extractor){
		demux.ExtractorOptLogger(log),
		demux.ExtractorOptPacketSize(pktSize),
	}
	if opts.Field != 0 {
		dopts = append(dopts, demux.ExtractorOptField(opts.Field))
	}
	if opts.Stats != nil {
		dopts = append(dopts, demux.ExtractorOptStats(opts.Stats))
	}
	ex, err := demux.NewExtractor(ctx, br, dopts...)
	if err != nil {
		closer.Close()
		return nil, 0, nil, err
	}
	return ex, KindTS, closer, nil
}

// sniff inspects the first bytes of br for a sync byte pattern or the
// SCC header and returns the container with its packet size.
func sniff(br *bufio.Reader, name string) (Kind, int) {
	head, _ := br.Peek(2 * 204)
	if bytes.HasPrefix(head, []byte("Scenarist")) {
		return KindSCC, 0
	}
	for _, size := range []int{188, 192, 204} {
		off := 0
		if size == 192 {
			off = 4
		}
		if len(head) > off && head[off] == 0x47 && (len(head) <= off+size || head[off+size] == 0x47) {
			return KindTS, size
		}
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m2ts", ".mts":
		return KindTS, 192
	case ".ts", ".trp":
		return KindTS, 188
	}
	return KindSCC, 0
}

// Collect drains src into a slice.
func Collect(src Source) ([]cea608.Cue, error) {
	var cues []cea608.Cue
	for {
		cue, err := src.Next()
		if errors.Is(err, io.EOF) {
			return cues, nil
		}
		if err != nil {
			return cues, err
		}
		cues = append(cues, cue)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
