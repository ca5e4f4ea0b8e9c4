package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/cc608/internal/ingest"
)

// srtReadBufferSize is the read buffer for SRT socket reads.
// 1316 bytes = 7 MPEG-TS packets (188 * 7), the standard SRT payload size.
const srtReadBufferSize = 1316 * 10

// DefaultLatency is the SRT receiver latency (120ms).
const DefaultLatency = 120_000_000

// Server accepts SRT publish connections and registers each one with
// the ingest registry. A stream key that is already live is refused.
type Server struct {
	log      *slog.Logger
	addr     string
	latency  int64
	registry *ingest.Registry
}

// ServerOptLatency sets the SRT latency in nanoseconds.
func ServerOptLatency(ns int64) func(*Server) {
	return func(s *Server) {
		if ns > 0 {
			s.latency = ns
		}
	}
}

// NewServer creates an SRT server listening on addr. If log is nil,
// slog.Default() is used.
func NewServer(addr string, registry *ingest.Registry, log *slog.Logger, opts ...func(*Server)) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		log:      log.With("component", "srt-server"),
		addr:     addr,
		latency:  DefaultLatency,
		registry: registry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start accepts publish connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = time.Duration(s.latency)

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if key := StreamKey(req.StreamID); s.registry.Active(key) {
			s.log.Warn("rejecting publish, stream key in use", "stream_key", key)
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		key := StreamKey(conn.StreamID())
		s.log.Info("publish", "stream_key", key, "remote", conn.RemoteAddr())

		go s.handleConnection(ctx, conn, key)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn *srtgo.Conn, key string) {
	defer conn.Close()

	stream, w, err := s.registry.Register(key)
	if err != nil {
		s.log.Warn("publish refused", "stream_key", key, "error", err)
		return
	}
	stream.SetRemoteAddr(conn.RemoteAddr().String())
	copyStream(ctx, s.log, conn, stream, w)
	s.registry.Unregister(key)
	logClosed(s.log, "connection closed", stream)
}

// copyStream moves SRT payloads into the session pipe until the
// connection or the pipe fails, or ctx is cancelled.
func copyStream(ctx context.Context, log *slog.Logger, conn io.Reader, stream *ingest.Stream, w io.Writer) {
	buf := make([]byte, srtReadBufferSize)
	for ctx.Err() == nil {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("read error", "stream_key", stream.Key, "error", err)
			}
			return
		}
		stream.RecordRead(n)
		if _, err := w.Write(buf[:n]); err != nil {
			log.Debug("pipe write error", "stream_key", stream.Key, "error", err)
			return
		}
	}
}

func logClosed(log *slog.Logger, msg string, stream *ingest.Stream) {
	stats := stream.IngestStats()
	log.Info(msg, "stream_key", stats.Key, "session", stats.ID,
		"bytes", stats.BytesReceived, "reads", stats.ReadCount,
		"uptime_ms", stats.UptimeMs)
}

// StreamKey derives the registry key from an SRT stream ID, dropping a
// leading "/" and "live/". An empty ID maps to "default".
func StreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
