package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/cc608/internal/demux"
	"github.com/zsiec/cc608/internal/ingest"
	"github.com/zsiec/cc608/internal/ingest/srt"
	"github.com/zsiec/cc608/internal/output"
	"github.com/zsiec/cc608/internal/pipeline"
	"github.com/zsiec/cc608/internal/stream"
)

var errDecodeStopped = errors.New("caption decoder stopped")

// live is the state of live mode: every SRT session becomes a decode
// pipeline whose snapshots go to one shared writer.
type live struct {
	*app
	ctx     context.Context
	mgr     *stream.Manager
	out     io.Writer
	outMu   sync.Mutex
	aliases atomic.Uint64
}

// runLive serves SRT input until ctx is cancelled.
func (a *app) runLive(ctx context.Context, w io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)

	l := &live{
		app: a,
		ctx: ctx,
		mgr: stream.NewManager(a.log),
		out: w,
	}
	registry := ingest.NewRegistry(l.handleNewStream)

	if a.cfg.SRT.Listen != "" {
		srv := srt.NewServer(a.cfg.SRT.Listen, registry, a.log,
			srt.ServerOptLatency(int64(a.cfg.SRT.LatencyMs)*1_000_000))
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	if len(a.cfg.SRT.Pull) > 0 {
		caller := srt.NewCaller(registry, a.log)
		g.Go(func() error {
			for _, req := range a.cfg.SRT.Pull {
				if err := caller.Pull(ctx, req); err != nil {
					return fmt.Errorf("pulling %s: %w", req.Address, err)
				}
			}
			return nil
		})
	}

	if a.cfg.HTTPAddr != "" {
		srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: l.routes()}
		g.Go(func() error {
			a.log.Info("HTTP server listening", "addr", a.cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		registry.Close()
		return nil
	})

	return g.Wait()
}

func (l *live) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", l.metrics.Handler())
	mux.Handle("GET /api/streams", l.mgr)
	if l.hub != nil {
		mux.Handle("/ws", l.hub)
	}
	return mux
}

// handleNewStream decodes one ingest session until its input ends.
func (l *live) handleNewStream(in *ingest.Stream) {
	log := l.log.With("stream_key", in.Key, "session", in.ID)
	st, ok := l.mgr.Create(in.Key, in.ID)
	if !ok {
		in.Abort(ingest.ErrStreamActive)
		return
	}
	defer l.mgr.Remove(in.Key)

	l.metrics.StreamStarted()
	defer l.metrics.StreamEnded()

	ex, err := demux.NewExtractor(l.ctx, in.Input(),
		demux.ExtractorOptLogger(log),
		demux.ExtractorOptField(l.cfg.Field),
		demux.ExtractorOptStats(l.metrics),
	)
	if err != nil {
		log.Error("starting demuxer", "error", err)
		in.Abort(err)
		return
	}

	primary, err := output.New(l.format, l.out, output.Options{
		Encoding:   l.enc,
		Source:     in.Key,
		TrackAlias: l.aliases.Add(1),
	})
	if err != nil {
		in.Abort(err)
		return
	}
	primary = output.Synchronized(primary, &l.outMu)

	p := pipeline.New(in.Key, pipeline.Source(ex), output.Tee(l.sink(primary, in.Key), st),
		pipeline.PipelineOptLogger(log),
		pipeline.PipelineOptStats(l.metrics),
		pipeline.PipelineOptDiagnostics(l.diagnostics()),
	)
	st.Attach(p, in)

	if err := p.Run(l.ctx); err != nil {
		log.Error("decode failed", "error", err)
		in.Abort(fmt.Errorf("%w: %v", errDecodeStopped, err))
		return
	}
	// The input ended or ctx was cancelled; fail further transport writes.
	in.Abort(errDecodeStopped)
}
