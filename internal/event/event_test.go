package event

import (
	"bytes"
	"testing"

	"github.com/ayusman/bodydetect/internal/detector"
)

func TestPoseMap(t *testing.T) {
	if PoseMap(nil) != nil {
		t.Error("expected nil map for absent pose")
	}

	m := PoseMap(detector.StandingPose())
	landmarks, ok := m["landmarks"].([]any)
	if !ok {
		t.Fatalf("expected landmarks slice, got %T", m["landmarks"])
	}
	if len(landmarks) != detector.NumLandmarks {
		t.Fatalf("expected %d landmarks, got %d", detector.NumLandmarks, len(landmarks))
	}

	first := landmarks[0].(map[string]any)
	if first["type"] != 0 {
		t.Errorf("expected first landmark type 0, got %v", first["type"])
	}
	if _, ok := first["position"].(map[string]any)["z"]; !ok {
		t.Error("expected z coordinate in position")
	}
}

func TestCodecs(t *testing.T) {
	mask := detector.UniformMask(4, 3, 0.25)

	for _, codec := range []Codec{JSONCodec{}, CBORCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(Mask{Mask: mask})
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			m, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if m["type"] != "mask" {
				t.Errorf("expected type mask, got %v", m["type"])
			}
			wire := m["mask"].(map[string]any)
			buf := wire["buffer"].([]any)
			width := toInt(t, wire["width"])
			height := toInt(t, wire["height"])
			if width*height != len(buf) {
				t.Errorf("expected %d values, got %d", width*height, len(buf))
			}
			for i, v := range buf {
				f, ok := v.(float64)
				if !ok || f < 0 || f > 1 {
					t.Fatalf("value %d out of range: %v", i, v)
				}
			}
		})
	}
}

func TestCodecs_AbsentPayload(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, CBORCodec{}} {
		data, err := codec.Encode(Pose{})
		if err != nil {
			t.Fatalf("%s: Encode failed: %v", codec.Name(), err)
		}
		m, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", codec.Name(), err)
		}
		if v, ok := m["pose"]; !ok || v != nil {
			t.Errorf("%s: expected explicit null pose, got %v", codec.Name(), v)
		}
	}
}

func TestCBORCodec_ImageBytesStayBinary(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}
	data, err := CBORCodec{}.Encode(Image{Bytes: jpeg, Width: 2, Height: 1})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	m, err := CBORCodec{}.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := m["image"].([]byte)
	if !ok || !bytes.Equal(got, jpeg) {
		t.Errorf("expected raw image bytes, got %v", m["image"])
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"", "json", "cbor"} {
		if _, err := CodecByName(name); err != nil {
			t.Errorf("CodecByName(%q) failed: %v", name, err)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Error("expected error for unknown codec")
	}
}

func toInt(t *testing.T, v any) int {
	t.Helper()
	switch n := v.(type) {
	case float64:
		return int(n)
	case uint64:
		return int(n)
	case int64:
		return int(n)
	}
	t.Fatalf("unexpected number type %T", v)
	return 0
}
