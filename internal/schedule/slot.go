package schedule

import (
	"context"
	"sync"

	"github.com/ayusman/bodydetect/internal/detector"
	"github.com/ayusman/bodydetect/internal/frame"
)

// DetectFunc runs one detection on an upright frame.
type DetectFunc[T any] func(ctx context.Context, f *frame.Frame) (T, error)

// Slot admits at most one outstanding detection. Frames offered while the
// slot is busy are refused, never queued.
type Slot[T any] struct {
	kind   detector.Kind
	detect DetectFunc[T]

	mu   sync.Mutex
	busy bool
}

// NewSlot creates an idle slot for the given detector kind.
func NewSlot[T any](kind detector.Kind, detect DetectFunc[T]) *Slot[T] {
	return &Slot[T]{kind: kind, detect: detect}
}

// Kind returns the detector kind served by the slot.
func (s *Slot[T]) Kind() detector.Kind { return s.kind }

// Busy reports whether a detection is outstanding.
func (s *Slot[T]) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// TryDispatch starts a detection on f and returns true, or returns false
// without side effects if one is already running. onComplete is called
// exactly once per accepted frame, after the slot is idle again, while the
// slot lock is held: completions of one slot never overlap, and onComplete
// must not call TryDispatch on the same slot.
func (s *Slot[T]) TryDispatch(ctx context.Context, f *frame.Frame, onComplete func(detector.Result[T])) bool {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return false
	}
	s.busy = true
	s.mu.Unlock()

	task := detector.Go(ctx, func(ctx context.Context) (T, error) {
		return s.detect(ctx, f)
	})

	go func() {
		res := task.Wait()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.busy = false
		onComplete(res)
	}()
	return true
}
