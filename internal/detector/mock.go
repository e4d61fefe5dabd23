package detector

import (
	"context"
	"sync"

	"github.com/ayusman/bodydetect/internal/frame"
)

// MockPoseDetector is a test implementation of PoseDetector.
// It allows tests to control the detection results.
type MockPoseDetector struct {
	mu    sync.Mutex
	pose  *Pose
	err   error
	calls int
}

// NewMockPoseDetector creates a new MockPoseDetector instance.
func NewMockPoseDetector() *MockPoseDetector {
	return &MockPoseDetector{}
}

// SetPose sets the pose that will be returned by DetectPose.
func (m *MockPoseDetector) SetPose(p *Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pose = p
}

// SetError sets the error that will be returned by DetectPose.
func (m *MockPoseDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times DetectPose ran.
func (m *MockPoseDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// DetectPose returns the pre-configured pose or error.
func (m *MockPoseDetector) DetectPose(ctx context.Context, f *frame.Frame) (*Pose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.pose, nil
}

// Close is a no-op for the mock detector.
func (m *MockPoseDetector) Close() error {
	return nil
}

// MockSegmenter is a test implementation of Segmenter.
// With no configured mask it returns a uniform mask the size of the frame.
type MockSegmenter struct {
	mu    sync.Mutex
	mask  *Mask
	err   error
	calls int
}

// NewMockSegmenter creates a new MockSegmenter instance.
func NewMockSegmenter() *MockSegmenter {
	return &MockSegmenter{}
}

// SetMask sets the mask that will be returned by Segment.
func (m *MockSegmenter) SetMask(mask *Mask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mask = mask
}

// SetError sets the error that will be returned by Segment.
func (m *MockSegmenter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Segment ran.
func (m *MockSegmenter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Segment returns the pre-configured mask or error.
func (m *MockSegmenter) Segment(ctx context.Context, f *frame.Frame) (*Mask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.mask != nil {
		return m.mask, nil
	}
	return UniformMask(f.Width(), f.Height(), 0.5), nil
}

// Close is a no-op for the mock segmenter.
func (m *MockSegmenter) Close() error {
	return nil
}

// UniformMask returns a width x height mask filled with confidence v.
func UniformMask(width, height int, v float64) *Mask {
	buf := make([]float64, width*height)
	for i := range buf {
		buf[i] = v
	}
	return &Mask{Buffer: buf, Width: width, Height: height}
}

// StandingPose returns a preset Pose of a person standing upright facing
// the camera, with every landmark present.
func StandingPose() *Pose {
	type point struct{ x, y float64 }
	points := [NumLandmarks]point{
		Nose:           {0.50, 0.12},
		LeftEyeInner:   {0.51, 0.10},
		LeftEye:        {0.52, 0.10},
		LeftEyeOuter:   {0.53, 0.10},
		RightEyeInner:  {0.49, 0.10},
		RightEye:       {0.48, 0.10},
		RightEyeOuter:  {0.47, 0.10},
		LeftEar:        {0.55, 0.11},
		RightEar:       {0.45, 0.11},
		MouthLeft:      {0.52, 0.15},
		MouthRight:     {0.48, 0.15},
		LeftShoulder:   {0.60, 0.25},
		RightShoulder:  {0.40, 0.25},
		LeftElbow:      {0.64, 0.38},
		RightElbow:     {0.36, 0.38},
		LeftWrist:      {0.66, 0.50},
		RightWrist:     {0.34, 0.50},
		LeftPinky:      {0.67, 0.53},
		RightPinky:     {0.33, 0.53},
		LeftIndex:      {0.66, 0.54},
		RightIndex:     {0.34, 0.54},
		LeftThumb:      {0.65, 0.52},
		RightThumb:     {0.35, 0.52},
		LeftHip:        {0.56, 0.55},
		RightHip:       {0.44, 0.55},
		LeftKnee:       {0.57, 0.72},
		RightKnee:      {0.43, 0.72},
		LeftAnkle:      {0.57, 0.90},
		RightAnkle:     {0.43, 0.90},
		LeftHeel:       {0.56, 0.92},
		RightHeel:      {0.44, 0.92},
		LeftFootIndex:  {0.59, 0.94},
		RightFootIndex: {0.41, 0.94},
	}

	pose := &Pose{Landmarks: make([]Landmark, NumLandmarks)}
	for i, p := range points {
		pose.Landmarks[i] = Landmark{
			Type:              LandmarkType(i),
			Position:          Point3D{X: p.x, Y: p.y},
			InFrameLikelihood: 0.95,
		}
	}
	return pose
}
