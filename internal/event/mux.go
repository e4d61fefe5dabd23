package event

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Sink receives published events. Send must not block.
type Sink interface {
	Send(ev Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Send(ev Event) { f(ev) }

// Recorder is notified of every publish. It is satisfied by *metrics.Metrics.
type Recorder interface {
	EventPublished(t string)
	EventUnobserved(t string)
}

// Multiplexer funnels events from every producer into the one registered
// sink, one event at a time. While no subscriber is registered events go to
// the fallback sink, if any, and are otherwise dropped.
type Multiplexer struct {
	mu       sync.Mutex
	sink     Sink
	fallback Sink
	recorder Recorder
}

// NewMultiplexer creates a multiplexer with no sink. recorder may be nil.
func NewMultiplexer(recorder Recorder) *Multiplexer {
	return &Multiplexer{recorder: recorder}
}

// Register makes s the sink and returns the sink it replaced, if any.
func (m *Multiplexer) Register(s Sink) Sink {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.sink
	m.sink = s
	if prev != nil {
		log.Info("Event sink replaced")
	} else {
		log.Info("Event sink registered")
	}
	return prev
}

// Unregister removes s if it is still the registered sink.
func (m *Multiplexer) Unregister(s Sink) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sink != s {
		return false
	}
	m.sink = nil
	log.Info("Event sink cancelled")
	return true
}

// SetFallback sets the sink used while no subscriber is registered.
func (m *Multiplexer) SetFallback(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = s
}

// HasSink reports whether a subscriber is registered.
func (m *Multiplexer) HasSink() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sink != nil
}

// Publish delivers ev to the current sink.
func (m *Multiplexer) Publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.sink
	if target == nil {
		target = m.fallback
	}
	if target == nil {
		if m.recorder != nil {
			m.recorder.EventUnobserved(string(ev.Type()))
		}
		return
	}
	target.Send(ev)
	if m.recorder != nil {
		m.recorder.EventPublished(string(ev.Type()))
	}
}
