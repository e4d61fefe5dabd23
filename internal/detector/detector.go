package detector

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/bodydetect/internal/frame"
)

// ErrClosed is returned by detectors that have been closed.
var ErrClosed = errors.New("detector closed")

// Kind names a detector capability.
type Kind int

// Detector kinds, in dispatch order.
const (
	KindPose Kind = iota
	KindMask
)

// Kinds lists every detector kind.
var Kinds = []Kind{KindPose, KindMask}

func (k Kind) String() string {
	switch k {
	case KindPose:
		return "pose"
	case KindMask:
		return "mask"
	}
	return "unknown"
}

// PoseDetector finds body landmarks in an upright frame.
type PoseDetector interface {
	// DetectPose returns the detected pose, or nil if nobody is in frame.
	DetectPose(ctx context.Context, f *frame.Frame) (*Pose, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Segmenter produces a foreground mask for an upright frame.
type Segmenter interface {
	// Segment returns the mask, or nil if the model produced none.
	Segment(ctx context.Context, f *frame.Frame) (*Mask, error)

	// Close releases any resources held by the segmenter.
	Close() error
}

// Config holds configuration options for the detector service processes.
type Config struct {
	// PythonPath is the interpreter used to run the services. Empty means
	// look for a virtualenv, then fall back to python3.
	PythonPath string

	// PoseScript and SegmentScript are the service entry points. Empty
	// means search the default locations.
	PoseScript    string
	SegmentScript string

	// StreamMode tells the pose service to track across frames instead of
	// treating every frame as an unrelated still image.
	StreamMode bool

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// IdleTimeout stops an unused service process (default: 30s).
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		StreamMode:    true,
		MinConfidence: 0.5,
		IdleTimeout:   30 * time.Second,
	}
}
