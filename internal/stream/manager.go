// Package stream tracks the live caption sessions of the SRT mode and
// reports their state over HTTP.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/zsiec/cc608/cea608"
	"github.com/zsiec/cc608/internal/ingest"
	"github.com/zsiec/cc608/internal/output"
)

// Counters reports decode progress; pipeline.Pipeline satisfies it.
type Counters interface {
	Cues() int64
	Snapshots() int64
}

// IngestSource reports transport counters; ingest.Stream satisfies it.
type IngestSource interface {
	IngestStats() ingest.IngestStats
}

// Stream is one live session. It is also an output.Sink that remembers
// the latest snapshot for status queries.
type Stream struct {
	Key       string
	Session   string
	StartedAt time.Time

	mu       sync.Mutex
	counters Counters
	ingest   IngestSource
	last     *output.Record
	done     chan struct{}
}

// Info is the JSON status of a Stream.
type Info struct {
	Key           string         `json:"key"`
	Session       string         `json:"session"`
	UptimeMs      int64          `json:"uptimeMs"`
	RemoteAddr    string         `json:"remoteAddr,omitempty"`
	BytesReceived int64          `json:"bytesReceived"`
	Cues          int64          `json:"cues"`
	Snapshots     int64          `json:"snapshots"`
	Caption       *output.Record `json:"caption,omitempty"`
}

// Attach connects the session's decode and transport counters.
func (s *Stream) Attach(c Counters, in IngestSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = c
	s.ingest = in
}

func (s *Stream) WriteSnapshot(snap cea608.Snapshot) error {
	rec := output.NewRecord(s.Key, snap)
	s.mu.Lock()
	s.last = &rec
	s.mu.Unlock()
	return nil
}

func (s *Stream) Close() error { return nil }

// Done is closed when the stream is removed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Info returns the current status.
func (s *Stream) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		Key:      s.Key,
		Session:  s.Session,
		UptimeMs: time.Since(s.StartedAt).Milliseconds(),
		Caption:  s.last,
	}
	if s.counters != nil {
		info.Cues = s.counters.Cues()
		info.Snapshots = s.counters.Snapshots()
	}
	if s.ingest != nil {
		st := s.ingest.IngestStats()
		info.RemoteAddr = st.RemoteAddr
		info.BytesReceived = st.BytesReceived
	}
	return info
}

// Manager manages the lifecycle of live sessions.
type Manager struct {
	log     *slog.Logger
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewManager creates a new stream manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log.With("component", "stream-manager"),
		streams: make(map[string]*Stream),
	}
}

// Create registers a session. Returns the stream and true if created,
// or nil and false if a stream with this key already exists.
func (m *Manager) Create(key, session string) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[key]; ok {
		m.log.Warn("stream already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Stream{
		Key:       key,
		Session:   session,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
	m.streams[key] = s
	m.log.Info("stream created", "key", key, "session", session)
	return s, true
}

// Remove removes a stream from the manager.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.streams[key]
	if ok {
		delete(m.streams, key)
	}
	m.mu.Unlock()

	if ok {
		close(s.done)
		m.log.Info("stream removed", "key", key, "session", s.Session)
	}
}

// List returns the status of every live stream, ordered by key.
func (m *Manager) List() []Info {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, len(streams))
	for i, s := range streams {
		infos[i] = s.Info()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// ServeHTTP writes List as JSON.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.List()); err != nil {
		m.log.Debug("writing stream list", "error", err)
	}
}
