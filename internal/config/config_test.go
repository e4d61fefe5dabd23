package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "bodydetect.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Encoding.JPEGQuality != 60 {
		t.Errorf("expected default JPEG quality 60, got %d", cfg.Encoding.JPEGQuality)
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
	if cfg.Camera.Front == nil || cfg.Camera.Back != nil {
		t.Errorf("expected only the front camera by default, got %+v", cfg.Camera)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  addr: ":9090"
camera:
  front:
    device_id: 1
    rotation: 270
    mirrored: true
detector:
  idle_timeout: 5s
events:
  codec: cbor
  mqtt:
    broker: tcp://localhost:1883
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Camera.Front == nil || cfg.Camera.Front.Rotation != 270 || !cfg.Camera.Front.Mirrored {
		t.Errorf("unexpected front camera %+v", cfg.Camera.Front)
	}
	if cfg.Camera.Front.DeviceID != 1 {
		t.Errorf("expected front device 1, got %d", cfg.Camera.Front.DeviceID)
	}
	if cfg.Camera.Back != nil {
		t.Errorf("expected no back camera unless configured, got %+v", cfg.Camera.Back)
	}
	if cfg.Detector.IdleTimeout != 5*time.Second {
		t.Errorf("expected 5s idle timeout, got %v", cfg.Detector.IdleTimeout)
	}
	if cfg.Events.Codec != "cbor" || cfg.Events.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("unexpected events config %+v", cfg.Events)
	}
	if cfg.Events.MQTT.Topic != "bodydetect/events" {
		t.Errorf("expected default topic kept, got %q", cfg.Events.MQTT.Topic)
	}
	if cfg.Encoding.JPEGQuality != 60 {
		t.Errorf("expected default quality kept, got %d", cfg.Encoding.JPEGQuality)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad rotation", "camera:\n  back:\n    rotation: 45\n"},
		{"bad quality", "encoding:\n  jpeg_quality: 0\n"},
		{"bad codec", "events:\n  codec: xml\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"not yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConfigureLogging(t *testing.T) {
	if err := ConfigureLogging(LogConfig{Level: "warn", Format: "json"}); err != nil {
		t.Errorf("ConfigureLogging failed: %v", err)
	}
	if err := ConfigureLogging(LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	ConfigureLogging(LogConfig{Level: "info"})
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file watcher test in short mode")
	}

	dir := t.TempDir()
	path := writeConfig(t, dir, "encoding:\n  jpeg_quality: 60\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Config, 4)
	Watch(ctx, path, func(cfg Config) { changes <- cfg })

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("encoding:\n  jpeg_quality: 80\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Encoding.JPEGQuality != 80 {
			t.Errorf("expected reloaded quality 80, got %d", cfg.Encoding.JPEGQuality)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
