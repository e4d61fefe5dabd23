package app

import (
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/capture"
	"github.com/ayusman/bodydetect/internal/config"
	"github.com/ayusman/bodydetect/internal/detector"
	"github.com/ayusman/bodydetect/internal/event"
	"github.com/ayusman/bodydetect/internal/frame"
	"github.com/ayusman/bodydetect/internal/relay"
)

// DetectorFactory builds detector backends. Streaming detectors feed the
// scheduler; single-image detectors serve one-shot commands.
type DetectorFactory interface {
	PoseDetector(stream bool) (detector.PoseDetector, error)
	Segmenter() (detector.Segmenter, error)
}

// MediaPipeFactory builds detectors backed by the MediaPipe services.
type MediaPipeFactory struct {
	Config detector.Config
}

// NewMediaPipeFactory converts the detector config section.
func NewMediaPipeFactory(dc config.DetectorConfig) MediaPipeFactory {
	cfg := detector.DefaultConfig()
	cfg.PythonPath = dc.PythonPath
	cfg.PoseScript = dc.PoseScript
	cfg.SegmentScript = dc.SegmentScript
	if dc.MinConfidence > 0 {
		cfg.MinConfidence = dc.MinConfidence
	}
	if dc.IdleTimeout > 0 {
		cfg.IdleTimeout = dc.IdleTimeout
	}
	return MediaPipeFactory{Config: cfg}
}

func (f MediaPipeFactory) PoseDetector(stream bool) (detector.PoseDetector, error) {
	cfg := f.Config
	cfg.StreamMode = stream
	return detector.NewMediaPipePoseDetector(cfg)
}

func (f MediaPipeFactory) Segmenter() (detector.Segmenter, error) {
	return detector.NewMediaPipeSegmenter(f.Config)
}

// MockFactory builds mock detectors. The pose detector always reports
// a standing person.
type MockFactory struct{}

func (MockFactory) PoseDetector(bool) (detector.PoseDetector, error) {
	d := detector.NewMockPoseDetector()
	d.SetPose(detector.StandingPose())
	return d, nil
}

func (MockFactory) Segmenter() (detector.Segmenter, error) {
	return detector.NewMockSegmenter(), nil
}

// fallbackFactory tries primary and falls back to mocks when a backend is
// not installed.
type fallbackFactory struct {
	primary DetectorFactory
}

func (f fallbackFactory) PoseDetector(stream bool) (detector.PoseDetector, error) {
	d, err := f.primary.PoseDetector(stream)
	if err != nil {
		log.Warnf("MediaPipe pose detection not available (%v), using mock detector", err)
		return MockFactory{}.PoseDetector(stream)
	}
	return d, nil
}

func (f fallbackFactory) Segmenter() (detector.Segmenter, error) {
	s, err := f.primary.Segmenter()
	if err != nil {
		log.Warnf("MediaPipe segmentation not available (%v), using mock segmenter", err)
		return MockFactory{}.Segmenter()
	}
	return s, nil
}

func detectorFactory(dc config.DetectorConfig) DetectorFactory {
	if dc.Mock {
		log.Info("Using mock detectors")
		return MockFactory{}
	}
	return fallbackFactory{primary: NewMediaPipeFactory(dc)}
}

// cameraDevices maps the configured lenses to capture options.
func cameraDevices(cc config.CameraConfig) map[capture.Facing]capture.Options {
	devices := make(map[capture.Facing]capture.Options)
	for facing, dev := range map[capture.Facing]*config.DeviceConfig{
		capture.FacingFront: cc.Front,
		capture.FacingBack:  cc.Back,
	} {
		if dev == nil {
			continue
		}
		devices[facing] = capture.Options{
			DeviceID: dev.DeviceID,
			Width:    cc.Width,
			Height:   cc.Height,
			FPS:      cc.FPS,
			Rotation: frame.Rotation(dev.Rotation),
			Mirrored: dev.Mirrored,
		}
	}
	return devices
}

// startRelays opens the configured fallback sinks. A relay that fails to
// start is logged and skipped.
func startRelays(ec config.EventsConfig, codec event.Codec, commands relay.Dispatcher) (event.Sink, []io.Closer) {
	var sinks []event.Sink
	var closers []io.Closer

	if ec.ZMQ.Endpoint != "" {
		z, err := relay.NewZMQ(ec.ZMQ.Endpoint, codec, ec.Buffer)
		if err != nil {
			log.WithError(err).Error("Failed to start ZeroMQ relay")
		} else {
			sinks = append(sinks, z)
			closers = append(closers, z)
		}
	}

	if ec.MQTT.Broker != "" {
		m, err := relay.NewMQTT(relay.MQTTOptions{
			Broker:   ec.MQTT.Broker,
			ClientID: ec.MQTT.ClientID,
			Topic:    ec.MQTT.Topic,
			QoS:      ec.MQTT.QoS,
			Codec:    codec,
			Buffer:   ec.Buffer,
			Commands: commands,
		})
		if err != nil {
			log.WithError(err).Error("Failed to start MQTT relay")
		} else {
			sinks = append(sinks, m)
			closers = append(closers, m)
		}
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], closers
	}
	return event.Tee(sinks...), closers
}
