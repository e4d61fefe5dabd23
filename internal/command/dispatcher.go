package command

import (
	"context"
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/capture"
	"github.com/ayusman/bodydetect/internal/detector"
	"github.com/ayusman/bodydetect/internal/event"
	"github.com/ayusman/bodydetect/internal/frame"
	"github.com/ayusman/bodydetect/internal/session"
)

// Controller is the camera session the dispatcher drives.
// *session.Controller satisfies it.
type Controller interface {
	Start() error
	Stop() error
	SwitchCamera(facing capture.Facing) error
	SetPoseEnabled(enabled bool)
	SetMaskEnabled(enabled bool)
	State() session.State
}

// Options configures a Dispatcher.
type Options struct {
	Controller Controller

	// Decode turns still-image bytes into an upright frame.
	Decode func(data []byte) (*frame.Frame, error)

	// NewPoseDetector and NewSegmenter create the single-image detectors
	// used by the one-shot commands. They are called at most once each.
	NewPoseDetector func() (detector.PoseDetector, error)
	NewSegmenter    func() (detector.Segmenter, error)
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, *Error)

// Dispatcher executes command requests.
type Dispatcher struct {
	opts     Options
	handlers map[string]handlerFunc

	// The locks guard lazy creation only. Detection runs unlocked.
	poseMu    sync.Mutex
	pose      detector.PoseDetector
	segMu     sync.Mutex
	segmenter detector.Segmenter
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{opts: opts}
	d.handlers = map[string]handlerFunc{
		MethodDetectImagePose:             d.detectImagePose,
		MethodDetectImageSegmentationMask: d.detectImageSegmentationMask,
		MethodEnablePoseDetection:         d.toggle(Controller.SetPoseEnabled, true),
		MethodDisablePoseDetection:        d.toggle(Controller.SetPoseEnabled, false),
		MethodEnableBodyMaskDetection:     d.toggle(Controller.SetMaskEnabled, true),
		MethodDisableBodyMaskDetection:    d.toggle(Controller.SetMaskEnabled, false),
		MethodStartCameraStream:           d.startCameraStream,
		MethodStopCameraStream:            d.stopCameraStream,
		MethodSwitchCamera:                d.switchCamera,
	}
	return d
}

// Dispatch runs req and always returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}

	h, ok := d.handlers[req.Method]
	if !ok {
		resp.Error = NotImplemented(req.Method)
		return resp
	}

	result, cerr := h(ctx, req.Arguments)
	if cerr != nil {
		log.WithFields(log.Fields{"method": req.Method, "code": cerr.Code}).Debug(cerr.Message)
		resp.Error = cerr
		return resp
	}
	resp.Success = true
	resp.Result = result
	return resp
}

// Close releases the one-shot detectors. Detections still in flight see
// their detector closed.
func (d *Dispatcher) Close() error {
	d.poseMu.Lock()
	pose := d.pose
	d.pose = nil
	d.poseMu.Unlock()

	d.segMu.Lock()
	seg := d.segmenter
	d.segmenter = nil
	d.segMu.Unlock()

	var firstErr error
	if pose != nil {
		firstErr = pose.Close()
	}
	if seg != nil {
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Dispatcher) poseDetector() (detector.PoseDetector, error) {
	d.poseMu.Lock()
	defer d.poseMu.Unlock()
	if d.pose == nil {
		det, err := d.opts.NewPoseDetector()
		if err != nil {
			return nil, err
		}
		d.pose = det
	}
	return d.pose, nil
}

func (d *Dispatcher) segmenterDetector() (detector.Segmenter, error) {
	d.segMu.Lock()
	defer d.segMu.Unlock()
	if d.segmenter == nil {
		seg, err := d.opts.NewSegmenter()
		if err != nil {
			return nil, err
		}
		d.segmenter = seg
	}
	return d.segmenter, nil
}

type imageArgs struct {
	ImageBytes    []byte `json:"imageBytes"`
	PNGImageBytes []byte `json:"pngImageBytes"`
}

// decodeImage reads the image argument. pngImageBytes is accepted as an
// older name for imageBytes.
func (d *Dispatcher) decodeImage(raw json.RawMessage) (*frame.Frame, *Error) {
	var args imageArgs
	if len(raw) == 0 || json.Unmarshal(raw, &args) != nil {
		return nil, BadArgument("imageBytes")
	}
	data := args.ImageBytes
	if len(data) == 0 {
		data = args.PNGImageBytes
	}
	if len(data) == 0 {
		return nil, BadArgument("imageBytes")
	}

	f, err := d.opts.Decode(data)
	if err != nil {
		log.WithError(err).Debug("Failed to decode image")
		return nil, BadArgument("imageBytes")
	}
	return f, nil
}

func (d *Dispatcher) detectImagePose(ctx context.Context, raw json.RawMessage) (any, *Error) {
	f, cerr := d.decodeImage(raw)
	if cerr != nil {
		return nil, cerr
	}
	defer f.Dispose()

	det, err := d.poseDetector()
	if err != nil {
		return nil, &Error{Code: CodePoseDetectorError, Message: err.Error()}
	}

	pose, err := det.DetectPose(ctx, f)
	if err != nil {
		return nil, &Error{Code: CodePoseDetectorError, Message: err.Error()}
	}
	return event.PoseMap(pose), nil
}

func (d *Dispatcher) detectImageSegmentationMask(ctx context.Context, raw json.RawMessage) (any, *Error) {
	f, cerr := d.decodeImage(raw)
	if cerr != nil {
		return nil, cerr
	}
	defer f.Dispose()

	seg, err := d.segmenterDetector()
	if err != nil {
		return nil, &Error{Code: CodeSelfieSegmenterError, Message: err.Error()}
	}

	mask, err := seg.Segment(ctx, f)
	if err != nil {
		return nil, &Error{Code: CodeSelfieSegmenterError, Message: err.Error()}
	}
	return event.MaskMap(mask), nil
}

func (d *Dispatcher) toggle(set func(Controller, bool), enabled bool) handlerFunc {
	return func(context.Context, json.RawMessage) (any, *Error) {
		set(d.opts.Controller, enabled)
		return nil, nil
	}
}

func (d *Dispatcher) startCameraStream(context.Context, json.RawMessage) (any, *Error) {
	if err := d.opts.Controller.Start(); err != nil {
		log.WithError(err).Warn("Camera unavailable")
	}
	return true, nil
}

func (d *Dispatcher) stopCameraStream(context.Context, json.RawMessage) (any, *Error) {
	if err := d.opts.Controller.Stop(); err != nil {
		log.WithError(err).Warn("Error stopping camera")
	}
	return true, nil
}

func (d *Dispatcher) switchCamera(_ context.Context, raw json.RawMessage) (any, *Error) {
	var args struct {
		LensFacing string `json:"lensFacing"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &args) != nil {
		return nil, BadArgument("lensFacing")
	}
	facing, err := capture.ParseFacing(args.LensFacing)
	if err != nil {
		return nil, BadArgument("lensFacing")
	}

	if err := d.opts.Controller.SwitchCamera(facing); err != nil {
		log.WithError(err).Warn("Camera switch failed")
	}
	return true, nil
}
