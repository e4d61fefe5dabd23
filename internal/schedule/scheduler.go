// Package schedule routes camera frames to the detectors without ever
// letting a slow detector queue frames.
package schedule

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/detector"
	"github.com/ayusman/bodydetect/internal/event"
	"github.com/ayusman/bodydetect/internal/frame"
	"github.com/ayusman/bodydetect/internal/metrics"
)

// Encoder turns an upright frame into the JPEG bytes of an Image event.
type Encoder interface {
	Encode(f *frame.Frame) ([]byte, error)
}

// Publisher accepts outbound events. Publish must not block.
type Publisher interface {
	Publish(ev event.Event)
}

// Snapshot is the session state captured when a frame is delivered.
type Snapshot struct {
	PoseEnabled bool
	MaskEnabled bool
	Generation  uuid.UUID
}

// Consumers returns the number of detectors the frame will be offered to.
func (s Snapshot) Consumers() int {
	n := 0
	if s.PoseEnabled {
		n++
	}
	if s.MaskEnabled {
		n++
	}
	return n
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithStrictRelease makes frame release defects panic.
func WithStrictRelease(strict bool) Option {
	return func(s *Scheduler) { s.strict = strict }
}

// Scheduler publishes an Image event for every frame and offers the frame
// to each enabled detector whose slot is idle.
//
// Events are only published for the active session generation; results
// that finish after Deactivate are dropped.
type Scheduler struct {
	encoder Encoder
	events  Publisher
	metrics *metrics.Metrics
	strict  bool

	pose *Slot[*detector.Pose]
	mask *Slot[*detector.Mask]

	ctx    context.Context
	cancel context.CancelFunc

	genMu      sync.RWMutex
	generation uuid.UUID
}

// New creates a scheduler over the streaming detectors.
func New(pose detector.PoseDetector, seg detector.Segmenter, enc Encoder, events Publisher, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		encoder: enc,
		events:  events,
		pose:    NewSlot(detector.KindPose, pose.DetectPose),
		mask:    NewSlot(detector.KindMask, seg.Segment),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activate starts accepting frames for session gen.
func (s *Scheduler) Activate(gen uuid.UUID) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generation = gen
}

// Deactivate ends the current session. No event is published after it returns.
func (s *Scheduler) Deactivate() {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generation = uuid.Nil
}

// Busy reports whether the slot for kind has a detection outstanding.
func (s *Scheduler) Busy(kind detector.Kind) bool {
	switch kind {
	case detector.KindPose:
		return s.pose.Busy()
	case detector.KindMask:
		return s.mask.Busy()
	}
	return false
}

// Close cancels the context passed to in-flight detections.
func (s *Scheduler) Close() {
	s.cancel()
}

// OnFrame takes ownership of an upright frame captured in session snap.
func (s *Scheduler) OnFrame(f *frame.Frame, snap Snapshot) {
	s.metrics.FrameReceived()

	if !s.current(snap.Generation) {
		f.Dispose()
		return
	}

	jpeg, err := s.encoder.Encode(f)
	if err != nil {
		log.WithError(err).Warn("Failed to encode camera frame")
		s.publish(snap.Generation, event.Error{Code: event.CodeCameraFrame, Message: err.Error()})
		f.Dispose()
		return
	}
	s.publish(snap.Generation, event.Image{Bytes: jpeg, Width: f.Width(), Height: f.Height()})

	_, permits := frame.Share(f, snap.Consumers(),
		frame.Strict(s.strict),
		frame.OnDefect(s.metrics.ReleaseDefect),
		frame.OnDispose(s.metrics.FrameDisposed),
	)

	next := 0
	if snap.PoseEnabled {
		s.dispatchPose(permits[next], snap.Generation)
		next++
	}
	if snap.MaskEnabled {
		s.dispatchMask(permits[next], snap.Generation)
	}
}

func (s *Scheduler) dispatchPose(p *frame.Permit, gen uuid.UUID) {
	kind := detector.KindPose.String()
	ok := s.pose.TryDispatch(s.ctx, p.Frame(), func(res detector.Result[*detector.Pose]) {
		ev := event.Pose{}
		if res.OK() {
			ev.Pose = res.Value
			s.metrics.Detection(kind, metrics.OutcomeSucceeded)
		} else {
			log.WithError(res.Err).Debug("Pose detection failed")
			s.metrics.Detection(kind, metrics.OutcomeFailed)
		}
		s.publish(gen, ev)
		p.Release()
	})
	s.account(kind, ok, p)
}

func (s *Scheduler) dispatchMask(p *frame.Permit, gen uuid.UUID) {
	kind := detector.KindMask.String()
	ok := s.mask.TryDispatch(s.ctx, p.Frame(), func(res detector.Result[*detector.Mask]) {
		ev := event.Mask{}
		if res.OK() {
			ev.Mask = res.Value
			s.metrics.Detection(kind, metrics.OutcomeSucceeded)
		} else {
			log.WithError(res.Err).Debug("Segmentation failed")
			s.metrics.Detection(kind, metrics.OutcomeFailed)
		}
		s.publish(gen, ev)
		p.Release()
	})
	s.account(kind, ok, p)
}

// account releases the permit of a frame the slot refused.
func (s *Scheduler) account(kind string, dispatched bool, p *frame.Permit) {
	if dispatched {
		s.metrics.Detection(kind, metrics.OutcomeDispatched)
		return
	}
	log.WithField("kind", kind).Debug("Detector busy, skipping frame")
	s.metrics.Detection(kind, metrics.OutcomeSkipped)
	p.Release()
}

func (s *Scheduler) current(gen uuid.UUID) bool {
	s.genMu.RLock()
	defer s.genMu.RUnlock()
	return gen != uuid.Nil && gen == s.generation
}

// publish holds the generation lock so Deactivate cannot interleave with a
// publish for the session it ends.
func (s *Scheduler) publish(gen uuid.UUID, ev event.Event) {
	s.genMu.RLock()
	defer s.genMu.RUnlock()
	if gen == uuid.Nil || gen != s.generation {
		return
	}
	s.events.Publish(ev)
}
