// Package session owns the camera session: its lifecycle, the lens in use
// and which detectors frames are offered to.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/capture"
	"github.com/ayusman/bodydetect/internal/frame"
	"github.com/ayusman/bodydetect/internal/metrics"
	"github.com/ayusman/bodydetect/internal/schedule"
)

// Phase is the camera session lifecycle state.
type Phase int

// Session phases.
const (
	Stopped Phase = iota
	Starting
	Running
)

func (p Phase) String() string {
	switch p {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	}
	return "unknown"
}

// ErrHardwareUnavailable is returned when the camera cannot be bound.
var ErrHardwareUnavailable = errors.New("camera hardware unavailable")

// State is the process-wide session state.
type State struct {
	PoseEnabled   bool
	MaskEnabled   bool
	LensFacing    capture.Facing
	CameraRunning bool
	Phase         Phase
	Generation    uuid.UUID
}

// FrameHandler receives upright frames for a session generation.
// *schedule.Scheduler satisfies it.
type FrameHandler interface {
	Activate(gen uuid.UUID)
	Deactivate()
	OnFrame(f *frame.Frame, snap schedule.Snapshot)
}

// Listener observes state changes. It runs on the goroutine that made the
// change and must not call back into the Controller's lifecycle methods.
type Listener func(prev, next State)

// PrepareFunc converts a raw camera frame into an upright one.
type PrepareFunc func(f *frame.Frame) (*frame.Frame, error)

// Controller drives the camera session state machine:
// Stopped -> Starting -> Running -> Stopped.
type Controller struct {
	provider capture.Provider
	handler  FrameHandler
	prepare  PrepareFunc
	metrics  *metrics.Metrics
	listener Listener

	// mu serializes lifecycle operations. The capture loop never takes it.
	mu     sync.Mutex
	camera capture.Camera
	stopCh chan struct{}
	done   chan struct{}

	stateMu sync.RWMutex
	state   State
}

// New creates a stopped controller using the front lens, or the back lens
// when the provider has no front camera.
func New(provider capture.Provider, handler FrameHandler, prepare PrepareFunc, m *metrics.Metrics) *Controller {
	if prepare == nil {
		prepare = func(f *frame.Frame) (*frame.Frame, error) { return f, nil }
	}
	facing := capture.FacingFront
	if !provider.HasCamera(facing) && provider.HasCamera(capture.FacingBack) {
		facing = capture.FacingBack
	}
	return &Controller{
		provider: provider,
		handler:  handler,
		prepare:  prepare,
		metrics:  m,
		state:    State{LensFacing: facing},
	}
}

// State returns a snapshot of the session state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// SetListener registers fn to be called after every state change.
func (c *Controller) SetListener(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.listener = fn
}

// Restore applies persisted preferences while stopped.
func (c *Controller) Restore(poseEnabled, maskEnabled bool, facing capture.Facing) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state.PoseEnabled = poseEnabled
	c.state.MaskEnabled = maskEnabled
	if c.state.Phase == Stopped && c.provider.HasCamera(facing) {
		c.state.LensFacing = facing
	}
}

// SetPoseEnabled toggles pose detection for subsequent frames.
func (c *Controller) SetPoseEnabled(enabled bool) {
	c.update(func(st *State) { st.PoseEnabled = enabled })
}

// SetMaskEnabled toggles segmentation for subsequent frames.
func (c *Controller) SetMaskEnabled(enabled bool) {
	c.update(func(st *State) { st.MaskEnabled = enabled })
}

// Start binds the current lens and begins delivering frames. It does
// nothing if a session is already starting or running.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State().Phase != Stopped {
		return nil
	}

	c.setPhase(Starting)
	facing := c.State().LensFacing

	cam, err := c.bind(facing)
	if err != nil {
		c.setPhase(Stopped)
		return err
	}

	gen := uuid.New()
	c.handler.Activate(gen)

	c.update(func(st *State) {
		st.Phase = Running
		st.CameraRunning = true
		st.Generation = gen
	})

	c.run(cam, gen)
	c.metrics.SessionStarted()

	log.WithFields(log.Fields{"lens": facing, "session": gen}).Info("Camera session started")
	return nil
}

// Stop unbinds the camera. No frame reaches the handler and no result is
// published for this session once Stop returns.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State().Phase == Stopped {
		return nil
	}

	gen := c.State().Generation
	c.handler.Deactivate()

	c.update(func(st *State) {
		st.Phase = Stopped
		st.CameraRunning = false
		st.Generation = uuid.Nil
	})

	err := c.unbind()
	log.WithField("session", gen).Info("Camera session stopped")
	return err
}

// SwitchCamera selects the lens facing. It does nothing when facing is
// already selected or no such camera exists. A running session is moved
// to the new lens; if that lens cannot be opened the old one keeps running.
func (c *Controller) SwitchCamera(facing capture.Facing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.State()
	if st.LensFacing == facing {
		return nil
	}
	if !c.provider.HasCamera(facing) {
		log.WithField("lens", facing).Debug("No camera for lens, ignoring switch")
		return nil
	}

	if st.Phase != Running {
		c.update(func(st *State) { st.LensFacing = facing })
		return nil
	}

	cam, err := c.bind(facing)
	if err != nil {
		return err
	}
	if err := c.unbind(); err != nil {
		log.WithError(err).Warn("Error closing previous camera")
	}
	c.update(func(st *State) { st.LensFacing = facing })
	c.run(cam, st.Generation)

	log.WithField("lens", facing).Info("Camera switched")
	return nil
}

func (c *Controller) bind(facing capture.Facing) (capture.Camera, error) {
	cam, err := c.provider.Camera(facing)
	if err != nil {
		return nil, errors.Join(ErrHardwareUnavailable, err)
	}
	if err := cam.Open(); err != nil {
		return nil, errors.Join(ErrHardwareUnavailable, err)
	}
	return cam, nil
}

// run starts the capture loop for cam. Callers hold mu.
func (c *Controller) run(cam capture.Camera, gen uuid.UUID) {
	c.camera = cam
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	go c.captureLoop(cam, gen, c.stopCh, c.done)
}

// unbind stops the capture loop and closes the camera. Callers hold mu.
func (c *Controller) unbind() error {
	if c.stopCh == nil {
		return nil
	}
	close(c.stopCh)
	<-c.done

	err := c.camera.Close()
	c.camera = nil
	c.stopCh = nil
	c.done = nil
	return err
}

func (c *Controller) setPhase(p Phase) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state.Phase = p
}

// update applies fn to the state and notifies the listener of any change.
func (c *Controller) update(fn func(st *State)) {
	c.stateMu.Lock()
	prev := c.state
	fn(&c.state)
	next := c.state
	listener := c.listener
	c.stateMu.Unlock()

	if listener != nil && prev != next {
		listener(prev, next)
	}
}

// captureLoop reads frames at the camera rate until stopCh closes.
func (c *Controller) captureLoop(cam capture.Camera, gen uuid.UUID, stopCh, done chan struct{}) {
	defer close(done)

	fps := cam.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			raw, err := cam.ReadFrame()
			if err != nil {
				log.WithError(err).Debug("Error reading frame")
				continue
			}

			f, err := c.prepare(raw)
			if err != nil {
				log.WithError(err).Warn("Error preparing frame")
				raw.Dispose()
				continue
			}

			// A stop that raced with this read wins.
			select {
			case <-stopCh:
				f.Dispose()
				return
			default:
			}

			st := c.State()
			c.handler.OnFrame(f, schedule.Snapshot{
				PoseEnabled: st.PoseEnabled,
				MaskEnabled: st.MaskEnabled,
				Generation:  gen,
			})
		}
	}
}
