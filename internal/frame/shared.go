package frame

import (
	"errors"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// ErrOverRelease is the panic value raised in strict mode when a frame is
// released more times than it has consumers.
var ErrOverRelease = errors.New("frame released more times than granted")

// Option configures a Shared frame.
type Option func(*Shared)

// Strict makes release defects panic instead of being logged.
func Strict(strict bool) Option {
	return func(s *Shared) { s.strict = strict }
}

// OnDefect registers a hook called for every release defect in non-strict mode.
func OnDefect(fn func()) Option {
	return func(s *Shared) { s.onDefect = fn }
}

// OnDispose registers a hook called once after the frame is disposed.
func OnDispose(fn func()) Option {
	return func(s *Shared) { s.onDispose = fn }
}

// Shared distributes one frame to a fixed number of consumers and disposes
// it when the last of them releases.
type Shared struct {
	frame    *Frame
	pending  atomic.Int32
	disposed atomic.Bool

	strict    bool
	onDefect  func()
	onDispose func()
}

// Permit is one consumer's claim on a Shared frame.
type Permit struct {
	shared   *Shared
	released atomic.Bool
}

// Share hands f to consumers consumers and returns one Permit per consumer.
// With zero consumers the frame is disposed before Share returns.
func Share(f *Frame, consumers int, opts ...Option) (*Shared, []*Permit) {
	s := &Shared{frame: f}
	for _, opt := range opts {
		opt(s)
	}
	if consumers < 0 {
		consumers = 0
	}
	s.pending.Store(int32(consumers))

	if consumers == 0 {
		s.dispose()
		return s, nil
	}

	permits := make([]*Permit, consumers)
	for i := range permits {
		permits[i] = &Permit{shared: s}
	}
	return s, permits
}

// Pending returns the number of consumers that have not released yet.
func (s *Shared) Pending() int { return int(s.pending.Load()) }

// Disposed reports whether the last consumer has released.
func (s *Shared) Disposed() bool { return s.disposed.Load() }

// Frame returns the frame being shared. It must not be used once every
// consumer has released.
func (p *Permit) Frame() *Frame { return p.shared.frame }

// Release gives up this consumer's claim. The last release disposes the
// frame. Releasing the same permit twice is a defect.
func (p *Permit) Release() {
	if !p.released.CompareAndSwap(false, true) {
		p.shared.defect("permit released twice")
		return
	}
	p.shared.release()
}

func (s *Shared) release() {
	n := s.pending.Add(-1)
	switch {
	case n == 0:
		s.dispose()
	case n < 0:
		s.pending.Add(1)
		s.defect("release after disposal")
	}
}

func (s *Shared) dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		s.defect("frame disposed twice")
		return
	}
	s.frame.Dispose()
	if s.onDispose != nil {
		s.onDispose()
	}
}

func (s *Shared) defect(reason string) {
	if s.strict {
		panic(ErrOverRelease)
	}
	log.WithField("reason", reason).Error("Frame release defect")
	if s.onDefect != nil {
		s.onDefect()
	}
}
