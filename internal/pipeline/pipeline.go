// Package pipeline runs one caption session: cues from a Source are fed
// through a CEA-608 decoder and the resulting snapshots are written to
// an output sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/internal/output"
)

// Stats receives per-cue counters. metrics.Metrics satisfies it.
type Stats interface {
	RecordCue()
	RecordSnapshot()
}

// Pipeline couples a cue source, a decoder session and a sink. A
// Pipeline is run once.
type Pipeline struct {
	log     *slog.Logger
	name    string
	src     Source
	sink    output.Sink
	stats   Stats
	decOpts []func(*cea608.Decoder)

	cues      atomic.Int64
	snapshots atomic.Int64
	lastCue   atomic.Int64
}

// PipelineOptLogger sets the logger. The default is slog.Default().
func PipelineOptLogger(log *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// PipelineOptStats forwards cue and snapshot counts to s.
func PipelineOptStats(s Stats) func(*Pipeline) {
	return func(p *Pipeline) {
		p.stats = s
	}
}

// PipelineOptDiagnostics sets the decoder's diagnostic handler.
func PipelineOptDiagnostics(h cea608.DiagnosticHandler) func(*Pipeline) {
	return func(p *Pipeline) {
		p.decOpts = append(p.decOpts, cea608.DecoderOptDiagnostics(h))
	}
}

// New creates a Pipeline named name, which labels its log lines.
func New(name string, src Source, sink output.Sink, opts ...func(*Pipeline)) *Pipeline {
	p := &Pipeline{
		log:  slog.Default(),
		name: name,
		src:  src,
		sink: sink,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "pipeline", "input", name)
	p.lastCue.Store(-1)
	return p
}

// Run decodes until the source is exhausted or ctx is cancelled, both of
// which return nil. Source, decoder and sink failures are returned; the
// sink is closed in every case.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	start := time.Now()
	dec := cea608.NewDecoder(append([]func(*cea608.Decoder){cea608.DecoderOptLogger(p.log)}, p.decOpts...)...)

	defer func() {
		if cerr := p.sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("pipeline %s: closing output: %w", p.name, cerr)
		}
		p.log.Info("decode finished",
			"cues", p.cues.Load(),
			"snapshots", p.snapshots.Load(),
			"elapsed", time.Since(start).Round(time.Millisecond),
			"error", err)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		cue, err := p.src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pipeline %s: reading input: %w", p.name, err)
		}

		snap, ok, err := dec.DecodeCue(cue)
		p.cues.Add(1)
		if p.stats != nil {
			p.stats.RecordCue()
		}
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", p.name, err)
		}
		if !ok {
			continue
		}

		if err := p.sink.WriteSnapshot(snap); err != nil {
			return fmt.Errorf("pipeline %s: writing output: %w", p.name, err)
		}
		p.snapshots.Add(1)
		p.lastCue.Store(int64(snap.Cue))
		if p.stats != nil {
			p.stats.RecordSnapshot()
		}
	}
}

// Cues returns the number of cues decoded so far.
func (p *Pipeline) Cues() int64 { return p.cues.Load() }

// Snapshots returns the number of snapshots produced so far, including
// any an output filter dropped.
func (p *Pipeline) Snapshots() int64 { return p.snapshots.Load() }

// LastCue returns the cue index of the latest snapshot, or -1.
func (p *Pipeline) LastCue() int64 { return p.lastCue.Load() }
