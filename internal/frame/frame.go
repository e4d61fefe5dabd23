// Package frame holds captured camera frames and the ownership rules that
// decide when their pixel buffers go back to the pool.
package frame

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// BytesPerPixel is the size of one BGR24 pixel.
const BytesPerPixel = 3

// ErrInvalidFrame is returned when a frame's dimensions do not match its buffer.
var ErrInvalidFrame = errors.New("invalid frame")

// Rotation is the clockwise rotation, in degrees, that makes a frame upright.
type Rotation int

// Supported rotations.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the four supported rotations.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// ParseRotation converts a degree value into a Rotation.
func ParseRotation(degrees int) (Rotation, error) {
	r := Rotation(degrees)
	if !r.Valid() {
		return 0, fmt.Errorf("%w: rotation %d", ErrInvalidFrame, degrees)
	}
	return r, nil
}

// Frame is one captured BGR24 image. Its fields never change after
// construction; the pixel buffer belongs to whoever disposes the frame.
type Frame struct {
	pixels    []byte
	width     int
	height    int
	rotation  Rotation
	mirrored  bool
	timestamp time.Time

	pool     *Pool
	disposed atomic.Bool
}

// New wraps pixels as a frame. The buffer length must equal
// width*height*BytesPerPixel.
func New(pixels []byte, width, height int, rotation Rotation, mirrored bool) (*Frame, error) {
	return newFrame(nil, pixels, width, height, rotation, mirrored)
}

func newFrame(pool *Pool, pixels []byte, width, height int, rotation Rotation, mirrored bool) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, width, height)
	}
	if want := width * height * BytesPerPixel; len(pixels) != want {
		return nil, fmt.Errorf("%w: buffer has %d bytes, want %d", ErrInvalidFrame, len(pixels), want)
	}
	if !rotation.Valid() {
		return nil, fmt.Errorf("%w: rotation %d", ErrInvalidFrame, rotation)
	}
	return &Frame{
		pixels:    pixels,
		width:     width,
		height:    height,
		rotation:  rotation,
		mirrored:  mirrored,
		timestamp: time.Now(),
		pool:      pool,
	}, nil
}

// Pixels returns the raw BGR24 buffer. It is only valid until the frame is disposed.
func (f *Frame) Pixels() []byte { return f.pixels }

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.height }

// Rotation returns the rotation needed to display the frame upright.
func (f *Frame) Rotation() Rotation { return f.rotation }

// Mirrored reports whether the frame must be flipped horizontally (front lens).
func (f *Frame) Mirrored() bool { return f.mirrored }

// Timestamp returns the capture time.
func (f *Frame) Timestamp() time.Time { return f.timestamp }

// Upright reports whether the frame needs no rotation or flip.
func (f *Frame) Upright() bool { return f.rotation == Rotate0 && !f.mirrored }

// Disposed reports whether the buffer has been handed back.
func (f *Frame) Disposed() bool { return f.disposed.Load() }

// Dispose returns the pixel buffer to its pool. Later calls do nothing and
// report false.
func (f *Frame) Dispose() bool {
	if !f.disposed.CompareAndSwap(false, true) {
		return false
	}
	if f.pool != nil {
		f.pool.put(f.pixels)
	}
	f.pixels = nil
	return true
}
