package detector

import (
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/bodydetect/internal/frame"
)

func TestLandmarkTable(t *testing.T) {
	tests := []struct {
		lt   LandmarkType
		code int
		name string
	}{
		{Nose, 0, "nose"},
		{LeftEyeInner, 1, "leftEyeInner"},
		{RightEar, 8, "rightEar"},
		{MouthLeft, 9, "mouthLeft"},
		{MouthRight, 10, "mouthRight"},
		{LeftShoulder, 11, "leftShoulder"},
		{RightWrist, 16, "rightWrist"},
		{LeftThumb, 21, "leftThumb"},
		{LeftHip, 23, "leftHip"},
		{RightHeel, 30, "rightHeel"},
		{LeftFootIndex, 31, "leftFootIndex"},
		{RightFootIndex, 32, "rightFootIndex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if int(tt.lt) != tt.code {
				t.Errorf("expected code %d, got %d", tt.code, int(tt.lt))
			}
			if tt.lt.String() != tt.name {
				t.Errorf("expected name %q, got %q", tt.name, tt.lt.String())
			}
			parsed, err := ParseLandmarkType(tt.name)
			if err != nil || parsed != tt.lt {
				t.Errorf("ParseLandmarkType(%q) = %v, %v", tt.name, parsed, err)
			}
		})
	}

	if got, _ := ParseLandmarkType("leftToe"); got != LeftFootIndex {
		t.Errorf("expected leftToe to map to %d, got %d", LeftFootIndex, got)
	}
	if LandmarkType(NumLandmarks).Valid() {
		t.Error("expected index 33 to be invalid")
	}
}

func TestMask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mask    Mask
		wantErr bool
	}{
		{"valid", Mask{Buffer: []float64{0, 0.5, 1, 0.25}, Width: 2, Height: 2}, false},
		{"short buffer", Mask{Buffer: []float64{0, 0.5, 1}, Width: 2, Height: 2}, true},
		{"out of range", Mask{Buffer: []float64{0, 1.5, 1, 0}, Width: 2, Height: 2}, true},
		{"negative", Mask{Buffer: []float64{-0.1}, Width: 1, Height: 1}, true},
		{"NaN", Mask{Buffer: []float64{math.NaN()}, Width: 1, Height: 1}, true},
		{"empty", Mask{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mask.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStandingPose(t *testing.T) {
	pose := StandingPose()
	if len(pose.Landmarks) != NumLandmarks {
		t.Fatalf("expected %d landmarks, got %d", NumLandmarks, len(pose.Landmarks))
	}

	nose, ok := pose.Landmark(Nose)
	if !ok {
		t.Fatal("expected nose landmark")
	}
	ankle, _ := pose.Landmark(LeftAnkle)
	if nose.Position.Y >= ankle.Position.Y {
		t.Error("expected nose above ankle in an upright pose")
	}
}

func TestMockSegmenter_DefaultMaskMatchesFrame(t *testing.T) {
	f, err := frame.New(make([]byte, 6*4*frame.BytesPerPixel), 6, 4, frame.Rotate0, false)
	if err != nil {
		t.Fatalf("frame.New failed: %v", err)
	}

	mask, err := NewMockSegmenter().Segment(context.Background(), f)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if mask.Width != 6 || mask.Height != 4 {
		t.Errorf("expected 6x4 mask, got %dx%d", mask.Width, mask.Height)
	}
	if err := mask.Validate(); err != nil {
		t.Errorf("mask invalid: %v", err)
	}
}

func TestMockPoseDetector(t *testing.T) {
	m := NewMockPoseDetector()
	m.SetPose(StandingPose())

	pose, err := m.DetectPose(context.Background(), nil)
	if err != nil || pose == nil {
		t.Fatalf("expected pose, got %v, %v", pose, err)
	}

	m.SetError(errors.New("model failed"))
	if _, err := m.DetectPose(context.Background(), nil); err == nil {
		t.Error("expected configured error")
	}
	if m.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", m.Calls())
	}
}

func TestTask(t *testing.T) {
	t.Run("returns value", func(t *testing.T) {
		task := Go(context.Background(), func(context.Context) (int, error) { return 42, nil })
		res := task.Wait()
		if !res.OK() || res.Value != 42 {
			t.Errorf("expected 42, got %v (%v)", res.Value, res.Err)
		}
	})

	t.Run("panic becomes error", func(t *testing.T) {
		task := Go(context.Background(), func(context.Context) (int, error) { panic("boom") })
		select {
		case <-task.Done():
		case <-time.After(time.Second):
			t.Fatal("task did not complete")
		}
		if task.Wait().OK() {
			t.Error("expected error result after panic")
		}
	})
}

func TestMediaPipeResponse_ToPose(t *testing.T) {
	p := jsonPose{Landmarks: []jsonLandmark{
		{Type: 0, X: 0.5, Y: 0.1, Z: -0.2, Visibility: 0.9},
		{Type: 32, X: 0.4, Y: 0.9, Z: 0.1, Visibility: 0.7},
	}}

	pose, err := p.toPose()
	if err != nil {
		t.Fatalf("toPose failed: %v", err)
	}
	if len(pose.Landmarks) != 2 {
		t.Fatalf("expected 2 landmarks, got %d", len(pose.Landmarks))
	}
	if pose.Landmarks[1].Type != RightFootIndex || pose.Landmarks[1].InFrameLikelihood != 0.7 {
		t.Errorf("unexpected landmark %+v", pose.Landmarks[1])
	}

	bad := jsonPose{Landmarks: []jsonLandmark{{Type: 40}}}
	if _, err := bad.toPose(); err == nil {
		t.Error("expected error for unknown landmark type")
	}
}

func TestNewMediaPipePoseDetector_MissingScript(t *testing.T) {
	config := DefaultConfig()
	config.PoseScript = "/nonexistent/pose_service.py"
	if _, err := NewMediaPipePoseDetector(config); err == nil {
		t.Error("expected error for missing script")
	}
}

// newSilentPoseDetector runs a service that reads nothing and never replies.
func newSilentPoseDetector(t *testing.T) *MediaPipePoseDetector {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	script := filepath.Join(t.TempDir(), PoseScriptName)
	if err := os.WriteFile(script, []byte("exec sleep 60\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	config := DefaultConfig()
	config.PythonPath = sh
	config.PoseScript = script
	d, err := NewMediaPipePoseDetector(config)
	if err != nil {
		t.Fatalf("NewMediaPipePoseDetector() error = %v", err)
	}
	return d
}

func (s *service) running() bool {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	return s.proc != nil
}

func TestMediaPipePoseDetector_ContextCancelStopsCall(t *testing.T) {
	d := newSilentPoseDetector(t)
	defer d.Close()

	f, err := frame.New(make([]byte, 2*2*frame.BytesPerPixel), 2, 2, frame.Rotate0, false)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := d.DetectPose(ctx, f)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("DetectPose() error = %v, want %v", err, context.DeadlineExceeded)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DetectPose() ignored context cancellation")
	}
}

func TestMediaPipePoseDetector_CloseBreaksHungCall(t *testing.T) {
	d := newSilentPoseDetector(t)

	f, err := frame.New(make([]byte, 2*2*frame.BytesPerPixel), 2, 2, frame.Rotate0, false)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := d.DetectPose(context.Background(), f)
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !d.svc.running() {
		if time.Now().After(deadline) {
			t.Fatal("service did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	closed := make(chan error, 1)
	go func() { closed <- d.Close() }()

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close() blocked on a hung call")
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("DetectPose() error = %v, want %v", err, ErrClosed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DetectPose() did not return after Close()")
	}

	if _, err := d.DetectPose(context.Background(), f); !errors.Is(err, ErrClosed) {
		t.Errorf("DetectPose() after Close() error = %v, want %v", err, ErrClosed)
	}
}
