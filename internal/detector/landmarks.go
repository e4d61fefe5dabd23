// Package detector provides body pose and segmentation detector interfaces
// and the result types they produce.
package detector

import (
	"fmt"
	"strings"
)

// LandmarkType identifies one of the 33 body landmarks.
type LandmarkType int

// Body landmark indices following the BlazePose topology.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose LandmarkType = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex
)

// NumLandmarks is the size of the landmark table.
const NumLandmarks = 33

var landmarkNames = [NumLandmarks]string{
	"nose",
	"leftEyeInner",
	"leftEye",
	"leftEyeOuter",
	"rightEyeInner",
	"rightEye",
	"rightEyeOuter",
	"leftEar",
	"rightEar",
	"mouthLeft",
	"mouthRight",
	"leftShoulder",
	"rightShoulder",
	"leftElbow",
	"rightElbow",
	"leftWrist",
	"rightWrist",
	"leftPinky",
	"rightPinky",
	"leftIndex",
	"rightIndex",
	"leftThumb",
	"rightThumb",
	"leftHip",
	"rightHip",
	"leftKnee",
	"rightKnee",
	"leftAnkle",
	"rightAnkle",
	"leftHeel",
	"rightHeel",
	"leftFootIndex",
	"rightFootIndex",
}

// Valid reports whether t is in the landmark table.
func (t LandmarkType) Valid() bool {
	return t >= 0 && t < NumLandmarks
}

func (t LandmarkType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("LandmarkType(%d)", int(t))
	}
	return landmarkNames[t]
}

// ParseLandmarkType looks up a landmark by name, ignoring case.
// "leftToe" and "rightToe" are accepted for the foot index points.
func ParseLandmarkType(name string) (LandmarkType, error) {
	switch strings.ToLower(name) {
	case "lefttoe":
		return LeftFootIndex, nil
	case "righttoe":
		return RightFootIndex, nil
	}
	for i, n := range landmarkNames {
		if strings.EqualFold(n, name) {
			return LandmarkType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown landmark %q", name)
}

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmark is one detected body point.
type Landmark struct {
	Type              LandmarkType `json:"type"`
	Position          Point3D      `json:"position"`
	InFrameLikelihood float64      `json:"inFrameLikelihood"`
}

// Pose is the set of landmarks found for one person. Landmarks may be empty
// when the detector ran but found nobody.
type Pose struct {
	Landmarks []Landmark `json:"landmarks"`
}

// Landmark returns the landmark of the given type, if present.
func (p *Pose) Landmark(t LandmarkType) (Landmark, bool) {
	for _, lm := range p.Landmarks {
		if lm.Type == t {
			return lm, true
		}
	}
	return Landmark{}, false
}

// Mask is a per-pixel foreground confidence map in row-major order.
type Mask struct {
	Buffer []float64 `json:"buffer"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

// Validate checks that the buffer matches the dimensions and every value
// is a confidence in [0, 1].
func (m *Mask) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("mask has invalid size %dx%d", m.Width, m.Height)
	}
	if len(m.Buffer) != m.Width*m.Height {
		return fmt.Errorf("mask buffer has %d values, want %d", len(m.Buffer), m.Width*m.Height)
	}
	for i, v := range m.Buffer {
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("mask value %f at %d out of range", v, i)
		}
	}
	return nil
}
