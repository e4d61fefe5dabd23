package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ayusman/bodydetect/internal/frame"
)

// MockFrame is one frame of pre-recorded BGR24 pixels.
type MockFrame struct {
	Width  int
	Height int
	Pixels []byte
}

// SolidFrame returns a width x height MockFrame filled with one BGR color.
func SolidFrame(width, height int, b, g, r byte) MockFrame {
	px := make([]byte, width*height*frame.BytesPerPixel)
	for i := 0; i < len(px); i += frame.BytesPerPixel {
		px[i], px[i+1], px[i+2] = b, g, r
	}
	return MockFrame{Width: width, Height: height, Pixels: px}
}

// MockCamera plays back pre-recorded frames for testing
type MockCamera struct {
	frames  []MockFrame
	opts    Options
	pool    *frame.Pool
	index   int
	loop    bool
	mu      sync.Mutex
	running bool
	openErr error
	opens   int
}

func NewMockCamera(frames []MockFrame, loop bool, opts Options, pool *frame.Pool) *MockCamera {
	if pool == nil {
		pool = frame.NewPool(0)
	}
	return &MockCamera{
		frames: frames,
		opts:   opts.withDefaults(),
		pool:   pool,
		loop:   loop,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.opens++
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	if len(c.frames) == 0 {
		return nil, errors.New("no frames available")
	}

	if c.index >= len(c.frames) {
		if c.loop {
			c.index = 0
		} else {
			return nil, errors.New("no more frames")
		}
	}

	// Copy into a fresh buffer so the recording is never handed out
	src := c.frames[c.index]
	c.index++

	f, err := c.pool.NewFrame(src.Width, src.Height, c.opts.Rotation, c.opts.Mirrored)
	if err != nil {
		return nil, fmt.Errorf("mock frame %d: %w", c.index-1, err)
	}
	copy(f.Pixels(), src.Pixels)
	return f, nil
}

func (c *MockCamera) SetFPS(fps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fps > 0 {
		c.opts.FPS = fps
	}
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.FPS
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetOpenError makes subsequent Open calls fail with err.
func (c *MockCamera) SetOpenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

// Opens returns how many times the camera was opened successfully.
func (c *MockCamera) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Reset restarts playback from the beginning
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}

// MockProvider serves MockCameras by lens facing.
type MockProvider struct {
	mu      sync.Mutex
	cameras map[Facing]*MockCamera
	binds   int
}

// NewMockProvider creates a provider over the given cameras.
func NewMockProvider(cameras map[Facing]*MockCamera) *MockProvider {
	return &MockProvider{cameras: cameras}
}

// HasCamera implements Provider.
func (p *MockProvider) HasCamera(facing Facing) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.cameras[facing]
	return ok
}

// Camera implements Provider.
func (p *MockProvider) Camera(facing Facing) (Camera, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cam, ok := p.cameras[facing]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCamera, facing)
	}
	p.binds++
	return cam, nil
}

// Binds returns how many cameras were handed out.
func (p *MockProvider) Binds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.binds
}
