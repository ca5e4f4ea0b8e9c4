// Package ingest tracks live MPEG-TS ingest sessions. Each session couples
// the bytes arriving from a transport with a pipe the caption decoder
// reads from, plus connection metadata for logging and metrics.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStreamActive is returned by Register when the key is already live.
	ErrStreamActive = errors.New("ingest: stream key already active")
	// ErrClosed is returned by Register after Close.
	ErrClosed = errors.New("ingest: registry closed")
)

// IngestStats captures connection-level counters for a session.
type IngestStats struct {
	ID            string `json:"id"`
	Key           string `json:"key"`
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stream is one live ingest session. Bytes written by the transport are
// read from Input by the decoder.
type Stream struct {
	ID        string
	Key       string
	StartedAt time.Time

	pr   *io.PipeReader
	pw   *io.PipeWriter
	done chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// Input returns the reader side of the session pipe. It reports io.EOF
// once the session is unregistered.
func (s *Stream) Input() io.Reader { return s.pr }

// Done is closed when the session is unregistered.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Abort makes pending and future transport writes fail with err. The
// decoder calls it when it stops reading early.
func (s *Stream) Abort(err error) {
	s.pr.CloseWithError(err)
}

// RecordRead adds one transport read of n bytes to the counters.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// IngestStats returns a snapshot of the session counters.
func (s *Stream) IngestStats() IngestStats {
	addr, _ := s.remoteAddr.Load().(string)
	return IngestStats{
		ID:            s.ID,
		Key:           s.Key,
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks live sessions by stream key and hands each new session
// to the onStream callback, which runs in its own goroutine.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream
	closed  bool

	onStream  func(s *Stream)
	callbacks sync.WaitGroup
}

func NewRegistry(onStream func(s *Stream)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register opens a session for key and returns it with the writer the
// transport should copy into. A key can only be live once.
func (r *Registry) Register(key string) (*Stream, io.Writer, error) {
	pr, pw := io.Pipe()
	stream := &Stream{
		ID:        uuid.New().String(),
		Key:       key,
		StartedAt: time.Now(),
		pr:        pr,
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrClosed
	}
	if _, ok := r.streams[key]; ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %q", ErrStreamActive, key)
	}
	r.streams[key] = stream
	if r.onStream != nil {
		r.callbacks.Add(1)
	}
	r.mu.Unlock()

	if r.onStream != nil {
		go func() {
			defer r.callbacks.Done()
			r.onStream(stream)
		}()
	}
	return stream, pw, nil
}

// Close ends every live session, refuses new ones, and waits for the
// running onStream callbacks to return.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	keys := make([]string, 0, len(r.streams))
	for k := range r.streams {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	for _, k := range keys {
		r.Unregister(k)
	}
	r.callbacks.Wait()
}

// Unregister ends the session for key: readers see io.EOF and Done is
// closed. Unknown keys are ignored.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// Active reports whether key has a live session.
func (r *Registry) Active(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Keys returns the live stream keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.streams))
	for k := range r.streams {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
