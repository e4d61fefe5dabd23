// Package config loads the YAML configuration file and watches it for
// changes.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Encoding EncodingConfig `yaml:"encoding"`
	Frames   FramesConfig   `yaml:"frames"`
	Events   EventsConfig   `yaml:"events"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
	Tray     TrayConfig     `yaml:"tray"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// DeviceConfig describes one lens. A nil DeviceConfig means the lens is absent.
type DeviceConfig struct {
	DeviceID int  `yaml:"device_id"`
	Rotation int  `yaml:"rotation"`
	Mirrored bool `yaml:"mirrored"`
}

type CameraConfig struct {
	Front  *DeviceConfig `yaml:"front"`
	Back   *DeviceConfig `yaml:"back"`
	Width  int           `yaml:"width"`
	Height int           `yaml:"height"`
	FPS    int           `yaml:"fps"`
}

type DetectorConfig struct {
	PythonPath    string        `yaml:"python_path"`
	PoseScript    string        `yaml:"pose_script"`
	SegmentScript string        `yaml:"segment_script"`
	MinConfidence float64       `yaml:"min_confidence"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	// Mock forces the mock detectors even if MediaPipe is installed.
	Mock bool `yaml:"mock"`
}

type EncodingConfig struct {
	JPEGQuality int `yaml:"jpeg_quality"`
}

type FramesConfig struct {
	PoolSize int `yaml:"pool_size"`
	// StrictRelease panics on frame release defects instead of logging them.
	StrictRelease bool `yaml:"strict_release"`
}

type EventsConfig struct {
	Codec  string     `yaml:"codec"`
	Buffer int        `yaml:"buffer"`
	ZMQ    ZMQConfig  `yaml:"zmq"`
	MQTT   MQTTConfig `yaml:"mqtt"`
}

// ZMQConfig enables a PUB socket sink when Endpoint is set.
type ZMQConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// MQTTConfig enables an MQTT sink when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:      ":8080",
			StaticDir: "web",
		},
		Camera: CameraConfig{
			Front:  &DeviceConfig{DeviceID: 0, Mirrored: true},
			Width:  640,
			Height: 480,
			FPS:    15,
		},
		Detector: DetectorConfig{
			MinConfidence: 0.5,
			IdleTimeout:   30 * time.Second,
		},
		Encoding: EncodingConfig{JPEGQuality: 60},
		Frames:   FramesConfig{PoolSize: 32},
		Events: EventsConfig{
			Codec:  "json",
			Buffer: 16,
			MQTT: MQTTConfig{
				ClientID: "bodydetect",
				Topic:    "bodydetect/events",
			},
		},
		Store: StoreConfig{Path: "bodydetect.db"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	log.Debugf("Loaded configuration: %v", spew.Sdump(cfg))
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	for name, dev := range map[string]*DeviceConfig{"front": c.Camera.Front, "back": c.Camera.Back} {
		if dev == nil {
			continue
		}
		switch dev.Rotation {
		case 0, 90, 180, 270:
		default:
			return fmt.Errorf("camera.%s.rotation must be 0, 90, 180 or 270, got %d", name, dev.Rotation)
		}
	}
	if c.Camera.Front == nil && c.Camera.Back == nil {
		return fmt.Errorf("no camera configured")
	}
	if q := c.Encoding.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("encoding.jpeg_quality must be between 1 and 100, got %d", q)
	}
	switch c.Events.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("events.codec must be json or cbor, got %q", c.Events.Codec)
	}
	if c.Events.MQTT.QoS > 2 {
		return fmt.Errorf("events.mqtt.qos must be 0, 1 or 2")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ConfigureLogging applies the log section to the standard logrus logger.
func ConfigureLogging(lc LogConfig) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	switch lc.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", lc.Format)
	}
	return nil
}
