package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/cc608/internal/output"
	"github.com/zsiec/cc608/internal/pipeline"
	"github.com/zsiec/cc608/scc"
)

// runFiles decodes each file in its own session. Files are decoded
// concurrently into private buffers, which are written to w in argument
// order once every session has finished.
func (a *app) runFiles(ctx context.Context, files []string, dumpSCC bool, w io.Writer) error {
	bufs := make([]bytes.Buffer, len(files))
	labelled := len(files) > 1

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range files {
		g.Go(func() error {
			if dumpSCC {
				return a.dumpFile(ctx, path, &bufs[i])
			}
			label := ""
			if labelled {
				label = path
			}
			return a.decodeFile(ctx, i, path, label, &bufs[i])
		})
	}
	err := g.Wait()

	for i := range bufs {
		if _, werr := bufs[i].WriteTo(w); werr != nil && err == nil {
			err = fmt.Errorf("writing output: %w", werr)
		}
	}
	return err
}

func (a *app) sourceOptions() pipeline.SourceOptions {
	return pipeline.SourceOptions{
		Log:   a.log,
		Field: a.cfg.Field,
		Stats: a.metrics,
	}
}

// decodeFile runs one session over path. label, when set, prefixes each
// text block and fills the source field of structured output.
func (a *app) decodeFile(ctx context.Context, index int, path, label string, w io.Writer) error {
	src, kind, closer, err := pipeline.Open(ctx, path, a.sourceOptions())
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer closer.Close()

	primary, err := output.New(a.format, w, output.Options{
		Encoding: a.enc,
		Source:   label,
		GroupID:  uint64(index),
	})
	if err != nil {
		return err
	}

	a.log.Debug("decoding file", "path", path, "kind", kind)
	p := pipeline.New(path, src, a.sink(primary, path),
		pipeline.PipelineOptLogger(a.log),
		pipeline.PipelineOptStats(a.metrics),
		pipeline.PipelineOptDiagnostics(a.diagnostics()),
	)
	return p.Run(ctx)
}

// dumpFile rewrites the cues of path as an SCC document.
func (a *app) dumpFile(ctx context.Context, path string, w io.Writer) error {
	src, _, closer, err := pipeline.Open(ctx, path, a.sourceOptions())
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer closer.Close()

	cues, err := pipeline.Collect(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for range cues {
		a.metrics.RecordCue()
	}
	return scc.Format(w, cues)
}
