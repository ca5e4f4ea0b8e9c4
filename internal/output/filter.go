package output

import (
	"sync"

	"github.com/zsiec/cc608/cea608"
)

// changesOnly forwards a snapshot only when its channel or text differs
// from the last one forwarded.
type changesOnly struct {
	next    Sink
	seen    bool
	channel int
	text    string
	dropped int
}

// ChangesOnly wraps next so that repeated identical snapshots are
// dropped. The first snapshot always passes.
func ChangesOnly(next Sink) Sink {
	return &changesOnly{next: next}
}

func (c *changesOnly) WriteSnapshot(s cea608.Snapshot) error {
	if c.seen && s.Channel == c.channel && s.Text == c.text {
		c.dropped++
		return nil
	}
	c.seen, c.channel, c.text = true, s.Channel, s.Text
	return c.next.WriteSnapshot(s)
}

func (c *changesOnly) Close() error { return c.next.Close() }

// Tee returns a sink that writes every snapshot to each of sinks in
// order, stopping at the first error.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) WriteSnapshot(s cea608.Snapshot) error {
	for _, sink := range t {
		if err := sink.WriteSnapshot(s); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) Close() error {
	var first error
	for _, sink := range t {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Synchronized serializes calls to next under mu, so sinks sharing one
// writer never interleave their output. Sinks that share a writer must
// share mu.
func Synchronized(next Sink, mu *sync.Mutex) Sink {
	return &synchronized{next: next, mu: mu}
}

type synchronized struct {
	next Sink
	mu   *sync.Mutex
}

func (s *synchronized) WriteSnapshot(snap cea608.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.WriteSnapshot(snap)
}

func (s *synchronized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Close()
}
