// Package event defines the detection events published to the client and
// the multiplexer that delivers them to a single subscriber.
package event

import "github.com/ayusman/bodydetect/internal/detector"

// Type is the discriminator carried in every event's "type" field.
type Type string

// Event types.
const (
	TypeImage Type = "image"
	TypePose  Type = "pose"
	TypeMask  Type = "mask"
	TypeError Type = "error"
)

// Error codes published in Error events.
const (
	CodeCameraFrame = "CameraFrame"
)

// Event is one message on the outbound stream.
type Event interface {
	Type() Type
	// Map returns the wire representation of the event.
	Map() map[string]any
}

// Image carries the JPEG encoding of one upright frame.
type Image struct {
	Bytes  []byte
	Width  int
	Height int
}

// Pose carries a pose detection result. A nil Pose means the detector
// failed or found nobody.
type Pose struct {
	Pose *detector.Pose
}

// Mask carries a segmentation result. A nil Mask means the segmenter failed.
type Mask struct {
	Mask *detector.Mask
}

// Error reports a stream-level problem that did not stop the session.
type Error struct {
	Code    string
	Message string
}

func (Image) Type() Type { return TypeImage }
func (Pose) Type() Type  { return TypePose }
func (Mask) Type() Type  { return TypeMask }
func (Error) Type() Type { return TypeError }

func (e Image) Map() map[string]any {
	return map[string]any{
		"type":   string(TypeImage),
		"image":  e.Bytes,
		"width":  e.Width,
		"height": e.Height,
	}
}

func (e Pose) Map() map[string]any {
	return map[string]any{
		"type": string(TypePose),
		"pose": PoseMap(e.Pose),
	}
}

func (e Mask) Map() map[string]any {
	return map[string]any{
		"type": string(TypeMask),
		"mask": MaskMap(e.Mask),
	}
}

func (e Error) Map() map[string]any {
	return map[string]any{
		"type":    string(TypeError),
		"code":    e.Code,
		"message": e.Message,
	}
}

// PoseMap converts a pose to its wire form. A nil pose maps to nil.
func PoseMap(p *detector.Pose) map[string]any {
	if p == nil {
		return nil
	}
	landmarks := make([]any, len(p.Landmarks))
	for i, lm := range p.Landmarks {
		landmarks[i] = map[string]any{
			"type": int(lm.Type),
			"position": map[string]any{
				"x": lm.Position.X,
				"y": lm.Position.Y,
				"z": lm.Position.Z,
			},
			"inFrameLikelihood": lm.InFrameLikelihood,
		}
	}
	return map[string]any{"landmarks": landmarks}
}

// MaskMap converts a mask to its wire form. A nil mask maps to nil.
func MaskMap(m *detector.Mask) map[string]any {
	if m == nil {
		return nil
	}
	return map[string]any{
		"buffer": m.Buffer,
		"width":  m.Width,
		"height": m.Height,
	}
}
