package output

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zsiec/cc608/cea608"
)

const (
	hubClientBuffer = 32
	hubWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans snapshots out to websocket viewers as JSON text messages. A
// viewer that connects late first receives the latest snapshot. A
// viewer that falls behind by more than its buffer loses messages
// rather than stalling the decoder.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[string]*hubClient
	last    []byte
	closed  bool

	dropped atomic.Int64
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewHub creates a Hub with no viewers.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log.With("component", "ws-hub"),
		clients: make(map[string]*hubClient),
	}
}

// Sink returns a Sink that broadcasts snapshots labelled with source.
// Closing it leaves the hub running.
func (h *Hub) Sink(source string) Sink {
	return hubSink{hub: h, source: source}
}

type hubSink struct {
	hub    *Hub
	source string
}

func (s hubSink) WriteSnapshot(snap cea608.Snapshot) error {
	return s.hub.Broadcast(NewRecord(s.source, snap))
}

func (s hubSink) Close() error { return nil }

// ServeHTTP upgrades the request and registers the viewer until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &hubClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, hubClientBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	if h.last != nil {
		c.send <- h.last
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("viewer connected", "id", c.id, "remote", r.RemoteAddr, "viewers", n)

	go h.writeLoop(c)
	h.readLoop(c)

	h.remove(c)
	<-c.done
	conn.Close()
	h.log.Info("viewer disconnected", "id", c.id)
}

// readLoop discards viewer messages and returns when the connection
// closes.
func (h *Hub) readLoop(c *hubClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("viewer read error", "id", c.id, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	defer close(c.done)
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("viewer write failed", "id", c.id, "error", err)
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

// Broadcast queues the record for every connected viewer.
func (h *Hub) Broadcast(r Record) error {
	msg, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("output: marshal snapshot: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = msg
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns the number of messages discarded for slow viewers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every viewer and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
		go h.hangUp(c)
	}
	return nil
}

// hangUp closes the connection once the close frame is written, so a
// viewer that never answers it does not hold ServeHTTP in readLoop.
func (h *Hub) hangUp(c *hubClient) {
	select {
	case <-c.done:
	case <-time.After(hubWriteTimeout):
	}
	c.conn.Close()
}
