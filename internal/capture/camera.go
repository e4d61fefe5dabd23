// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/bodydetect/internal/frame"
)

// Default camera settings
const (
	DefaultFPS    = 15
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller owns it and must
	// dispose it.
	ReadFrame() (*frame.Frame, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Options describes one physical camera.
type Options struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
	// Rotation is the sensor orientation relative to upright.
	Rotation frame.Rotation
	// Mirrored is set for user-facing lenses whose preview is flipped.
	Mirrored bool
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	return o
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	opts    Options
	pool    *frame.Pool
	capture *gocv.VideoCapture
	mat     gocv.Mat
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a new Camera for the given device. Frame buffers come
// from pool.
func NewCamera(opts Options, pool *frame.Pool) Camera {
	opts = opts.withDefaults()
	return &cameraImpl{
		opts: opts,
		pool: pool,
		fps:  opts.FPS,
	}
}

// Open opens the camera for capturing frames.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.opts.DeviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.opts.DeviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open camera %d: device unavailable", c.opts.DeviceID)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = capture
	c.mat = gocv.NewMat()
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.mat.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera into a pooled buffer.
func (c *cameraImpl) ReadFrame() (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	if ok := c.capture.Read(&c.mat); !ok {
		return nil, errors.New("failed to read frame from camera")
	}
	if c.mat.Empty() {
		return nil, errors.New("captured frame is empty")
	}
	if c.mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("unsupported capture format %v", c.mat.Type())
	}

	f, err := c.pool.NewFrame(c.mat.Cols(), c.mat.Rows(), c.opts.Rotation, c.opts.Mirrored)
	if err != nil {
		return nil, err
	}
	copy(f.Pixels(), c.mat.ToBytes())
	return f, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
