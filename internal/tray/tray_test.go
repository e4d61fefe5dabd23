package tray

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ayusman/bodydetect/internal/capture"
	"github.com/ayusman/bodydetect/internal/command"
	"github.com/ayusman/bodydetect/internal/session"
)

func TestRequestFor(t *testing.T) {
	tests := []struct {
		name   string
		action menuAction
		state  session.State
		want   string
	}{
		{"start when stopped", actionCamera, session.State{}, command.MethodStartCameraStream},
		{"stop when running", actionCamera, session.State{CameraRunning: true}, command.MethodStopCameraStream},
		{"enable pose", actionPose, session.State{}, command.MethodEnablePoseDetection},
		{"disable pose", actionPose, session.State{PoseEnabled: true}, command.MethodDisablePoseDetection},
		{"enable mask", actionMask, session.State{}, command.MethodEnableBodyMaskDetection},
		{"disable mask", actionMask, session.State{MaskEnabled: true}, command.MethodDisableBodyMaskDetection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestFor(tt.action, tt.state).Method; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRequestFor_SwitchCameraTogglesLens(t *testing.T) {
	for facing, want := range map[capture.Facing]string{
		capture.FacingBack:  "FRONT",
		capture.FacingFront: "BACK",
	} {
		req := requestFor(actionSwitch, session.State{LensFacing: facing})
		if req.Method != command.MethodSwitchCamera {
			t.Fatalf("expected %s, got %s", command.MethodSwitchCamera, req.Method)
		}
		var args struct {
			LensFacing string `json:"lensFacing"`
		}
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			t.Fatalf("failed to decode arguments: %v", err)
		}
		if args.LensFacing != want {
			t.Errorf("from %s: expected %s, got %s", facing, want, args.LensFacing)
		}
	}
}

type recordingDispatcher struct {
	methods []string
}

func (r *recordingDispatcher) Dispatch(_ context.Context, req command.Request) command.Response {
	r.methods = append(r.methods, req.Method)
	return command.Response{Success: true}
}

func TestTray_ClickUsesLatestState(t *testing.T) {
	d := &recordingDispatcher{}
	tr := New(d, session.State{})

	tr.click(actionPose)
	tr.Update(session.State{PoseEnabled: true})
	tr.click(actionPose)

	want := []string{command.MethodEnablePoseDetection, command.MethodDisablePoseDetection}
	if len(d.methods) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), d.methods)
	}
	for i := range want {
		if d.methods[i] != want[i] {
			t.Errorf("command %d: expected %s, got %s", i, want[i], d.methods[i])
		}
	}
	if !tr.State().PoseEnabled {
		t.Error("expected tray state to be updated")
	}
}
