package srt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/cc608/internal/ingest"
)

const dialTimeout = 10 * time.Second

var (
	ErrAddressRequired = errors.New("srt: address is required")
	ErrPullActive      = errors.New("srt: pull already active")
	ErrNoPull          = errors.New("srt: no active pull")
)

// PullRequest describes a remote SRT listener to pull from.
type PullRequest struct {
	Address   string `json:"address" yaml:"address"`
	StreamKey string `json:"streamKey" yaml:"stream_key"`
	StreamID  string `json:"streamId,omitempty" yaml:"stream_id,omitempty"`
}

type activePull struct {
	req    PullRequest
	cancel context.CancelFunc
	done   chan struct{}
}

// Caller dials remote SRT listeners and streams their MPEG-TS into the
// ingest registry.
type Caller struct {
	log      *slog.Logger
	latency  int64
	registry *ingest.Registry

	mu    sync.Mutex
	pulls map[string]*activePull
}

// NewCaller creates a Caller. If log is nil, slog.Default() is used.
func NewCaller(registry *ingest.Registry, log *slog.Logger) *Caller {
	if log == nil {
		log = slog.Default()
	}
	return &Caller{
		log:      log.With("component", "srt-caller"),
		latency:  DefaultLatency,
		registry: registry,
		pulls:    make(map[string]*activePull),
	}
}

// Pull dials the remote listener synchronously, bounded by a timeout.
// On success the stream is copied in the background until the remote
// closes, Stop is called, or ctx is cancelled. An empty StreamKey
// defaults to the key derived from StreamID.
func (c *Caller) Pull(ctx context.Context, req PullRequest) error {
	if req.Address == "" {
		return ErrAddressRequired
	}
	if req.StreamKey == "" {
		req.StreamKey = StreamKey(req.StreamID)
	}

	c.mu.Lock()
	_, exists := c.pulls[req.StreamKey]
	c.mu.Unlock()
	if exists {
		return fmt.Errorf("%w for stream key %q", ErrPullActive, req.StreamKey)
	}

	c.log.Info("dialing", "address", req.Address, "stream_key", req.StreamKey)

	cfg := srtgo.DefaultConfig()
	cfg.Latency = time.Duration(c.latency)
	cfg.StreamID = req.StreamID
	if cfg.StreamID == "" {
		cfg.StreamID = "live/" + req.StreamKey
	}

	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(req.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("SRT dial failed: %w", res.err)
		}
		return c.startStreaming(ctx, req, res.conn)
	case <-timer.C:
		go closeLate(ch)
		return fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		go closeLate(ch)
		return ctx.Err()
	}
}

type dialResult struct {
	conn *srtgo.Conn
	err  error
}

// closeLate closes a connection whose dial finished after Pull gave up
// on it.
func closeLate(ch <-chan dialResult) {
	if res := <-ch; res.conn != nil {
		res.conn.Close()
	}
}

func (c *Caller) startStreaming(ctx context.Context, req PullRequest, conn *srtgo.Conn) error {
	stream, w, err := c.registry.Register(req.StreamKey)
	if err != nil {
		conn.Close()
		return err
	}

	pullCtx, cancel := context.WithCancel(ctx)
	ap := &activePull{req: req, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if _, exists := c.pulls[req.StreamKey]; exists {
		c.mu.Unlock()
		cancel()
		conn.Close()
		c.registry.Unregister(req.StreamKey)
		return fmt.Errorf("%w for stream key %q", ErrPullActive, req.StreamKey)
	}
	c.pulls[req.StreamKey] = ap
	c.mu.Unlock()

	stream.SetRemoteAddr(req.Address)
	c.log.Info("connected", "address", req.Address, "stream_key", req.StreamKey, "session", stream.ID)

	go func() {
		defer close(ap.done)
		// Closing the connection unblocks a pending Read on Stop.
		stop := context.AfterFunc(pullCtx, func() { conn.Close() })
		defer stop()

		copyStream(pullCtx, c.log, conn, stream, w)

		conn.Close()
		c.registry.Unregister(req.StreamKey)
		c.mu.Lock()
		delete(c.pulls, req.StreamKey)
		c.mu.Unlock()
		cancel()
		logClosed(c.log, "pull ended", stream)
	}()

	return nil
}

// Stop cancels the pull for streamKey and waits for it to wind down.
func (c *Caller) Stop(streamKey string) error {
	c.mu.Lock()
	ap, ok := c.pulls[streamKey]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w for stream key %q", ErrNoPull, streamKey)
	}

	ap.cancel()
	<-ap.done
	return nil
}

func (c *Caller) ActivePulls() []PullRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PullRequest, 0, len(c.pulls))
	for _, ap := range c.pulls {
		out = append(out, ap.req)
	}
	return out
}
