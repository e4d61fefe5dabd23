// Package imaging converts frames with OpenCV: orientation fix-up, JPEG
// encoding for Image events and decoding of still images.
package imaging

import (
	"errors"
	"fmt"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/ayusman/bodydetect/internal/frame"
)

// DefaultJPEGQuality is the quality used for Image events.
const DefaultJPEGQuality = 60

// ErrUndecodable is returned when image bytes are not a supported format.
var ErrUndecodable = errors.New("undecodable image")

// Encoder prepares camera frames for the scheduler and encodes them as JPEG.
type Encoder struct {
	quality atomic.Int32
	pool    *frame.Pool
}

// NewEncoder creates an encoder. Upright frames are allocated from pool.
func NewEncoder(quality int, pool *frame.Pool) *Encoder {
	e := &Encoder{pool: pool}
	e.SetQuality(quality)
	return e
}

// SetQuality changes the JPEG quality (1-100). Out-of-range values select
// DefaultJPEGQuality.
func (e *Encoder) SetQuality(quality int) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	e.quality.Store(int32(quality))
}

// Quality returns the current JPEG quality.
func (e *Encoder) Quality() int {
	return int(e.quality.Load())
}

// Encode returns the JPEG encoding of f.
func (e *Encoder) Encode(f *frame.Frame) ([]byte, error) {
	mat, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), e.Quality()})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed by Close.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Upright returns f rotated and flipped so it displays correctly. The input
// frame is disposed when a new frame is produced.
func (e *Encoder) Upright(f *frame.Frame) (*frame.Frame, error) {
	if f.Upright() {
		return f, nil
	}

	src, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	rotated := gocv.NewMat()
	defer rotated.Close()

	switch f.Rotation() {
	case frame.Rotate90:
		gocv.Rotate(src, &rotated, gocv.Rotate90Clockwise)
	case frame.Rotate180:
		gocv.Rotate(src, &rotated, gocv.Rotate180Clockwise)
	case frame.Rotate270:
		gocv.Rotate(src, &rotated, gocv.Rotate90CounterClockwise)
	default:
		src.CopyTo(&rotated)
	}

	upright := rotated
	if f.Mirrored() {
		flipped := gocv.NewMat()
		defer flipped.Close()
		gocv.Flip(rotated, &flipped, 1)
		upright = flipped
	}

	out, err := fromMat(upright, e.pool)
	if err != nil {
		return nil, err
	}
	f.Dispose()
	return out, nil
}

// Decode decodes PNG or JPEG bytes into an upright frame.
func Decode(data []byte, pool *frame.Pool) (*frame.Frame, error) {
	if len(data) == 0 {
		return nil, ErrUndecodable
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, ErrUndecodable
	}
	return fromMat(mat, pool)
}

func toMat(f *frame.Frame) (gocv.Mat, error) {
	if f.Disposed() {
		return gocv.Mat{}, fmt.Errorf("%w: frame already disposed", frame.ErrInvalidFrame)
	}
	mat, err := gocv.NewMatFromBytes(f.Height(), f.Width(), gocv.MatTypeCV8UC3, f.Pixels())
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("wrap frame: %w", err)
	}
	return mat, nil
}

// fromMat copies a BGR24 Mat into a new frame.
func fromMat(mat gocv.Mat, pool *frame.Pool) (*frame.Frame, error) {
	if mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("%w: unsupported mat type %v", frame.ErrInvalidFrame, mat.Type())
	}

	data := mat.ToBytes()
	if pool == nil {
		return frame.New(data, mat.Cols(), mat.Rows(), frame.Rotate0, false)
	}

	f, err := pool.NewFrame(mat.Cols(), mat.Rows(), frame.Rotate0, false)
	if err != nil {
		return nil, err
	}
	copy(f.Pixels(), data)
	return f, nil
}
