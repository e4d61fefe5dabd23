package capture

import (
	"testing"

	"github.com/ayusman/bodydetect/internal/frame"
)

func TestMockCamera_Playback(t *testing.T) {
	pool := frame.NewPool(4)
	cam := NewMockCamera([]MockFrame{SolidFrame(4, 2, 1, 2, 3), SolidFrame(4, 2, 4, 5, 6)}, false, Options{}, pool)

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	// Read both frames
	f1, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f1.Pixels()[0] != 1 {
		t.Errorf("expected first frame, got blue=%d", f1.Pixels()[0])
	}
	f1.Dispose()

	f2, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	f2.Dispose()

	// Third read should fail (no loop)
	if _, err := cam.ReadFrame(); err == nil {
		t.Error("expected error after all frames consumed")
	}

	if got := pool.Stats().Outstanding; got != 0 {
		t.Errorf("expected all buffers returned, %d outstanding", got)
	}
}

func TestMockCamera_Loop(t *testing.T) {
	cam := NewMockCamera([]MockFrame{SolidFrame(2, 2, 0, 0, 0)}, true, Options{Rotation: frame.Rotate270}, nil)
	cam.Open()
	defer cam.Close()

	// Should loop indefinitely
	for i := 0; i < 5; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		if f.Rotation() != frame.Rotate270 {
			t.Errorf("expected rotation 270, got %d", f.Rotation())
		}
		f.Dispose()
	}
}

func TestMockCamera_NotOpen(t *testing.T) {
	cam := NewMockCamera([]MockFrame{SolidFrame(2, 2, 0, 0, 0)}, true, Options{}, nil)
	if _, err := cam.ReadFrame(); err != ErrCameraNotOpen {
		t.Errorf("expected ErrCameraNotOpen, got %v", err)
	}
}
