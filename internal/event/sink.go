package event

import (
	"sync"
	"sync/atomic"
)

// ChanSink buffers events for a consumer goroutine. When the buffer is full
// the newest event is dropped rather than blocking the publisher.
type ChanSink struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewChanSink creates a sink with room for capacity pending events.
func NewChanSink(capacity int) *ChanSink {
	if capacity <= 0 {
		capacity = 1
	}
	return &ChanSink{ch: make(chan Event, capacity)}
}

// Send implements Sink.
func (s *ChanSink) Send(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- ev:
		s.sent.Add(1)
	default:
		s.dropped.Add(1)
	}
}

// C returns the channel the consumer reads from. It is closed by Close.
func (s *ChanSink) C() <-chan Event { return s.ch }

// Close stops accepting events and closes the channel.
func (s *ChanSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Stats returns the number of events queued and dropped.
func (s *ChanSink) Stats() (sent, dropped uint64) {
	return s.sent.Load(), s.dropped.Load()
}

type tee []Sink

func (t tee) Send(ev Event) {
	for _, s := range t {
		s.Send(ev)
	}
}

// Tee returns a sink that forwards every event to each of sinks in order.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}
