// Package command implements the command surface used by clients to
// control the camera session and run one-shot detections.
package command

import (
	"encoding/json"
	"fmt"
)

// Method names.
const (
	MethodDetectImagePose             = "detectImagePose"
	MethodDetectImageSegmentationMask = "detectImageSegmentationMask"
	MethodEnablePoseDetection         = "enablePoseDetection"
	MethodDisablePoseDetection        = "disablePoseDetection"
	MethodEnableBodyMaskDetection     = "enableBodyMaskDetection"
	MethodDisableBodyMaskDetection    = "disableBodyMaskDetection"
	MethodStartCameraStream           = "startCameraStream"
	MethodStopCameraStream            = "stopCameraStream"
	MethodSwitchCamera                = "switchCamera"
)

// Error codes.
const (
	CodeArgumentError        = "ArgumentError"
	CodePoseDetectorError    = "PoseDetectorError"
	CodeSelfieSegmenterError = "SelfieSegmenterError"
	CodeNotImplemented       = "NotImplemented"
)

// Request is one command invocation.
type Request struct {
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// NewRequest builds a request, encoding args as the argument object.
func NewRequest(method string, args any) (Request, error) {
	req := Request{Method: method}
	if args == nil {
		return req, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return Request{}, err
	}
	req.Arguments = raw
	return req, nil
}

// Response is the outcome of a command.
type Response struct {
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a command failure reported to the caller.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// BadArgument reports a missing or malformed argument.
func BadArgument(name string) *Error {
	return &Error{Code: CodeArgumentError, Message: fmt.Sprintf("Invalid argument: %s.", name)}
}

// NotImplemented reports an unknown method.
func NotImplemented(method string) *Error {
	return &Error{Code: CodeNotImplemented, Message: fmt.Sprintf("Method %s is not implemented.", method)}
}
