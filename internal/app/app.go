// Package app wires the bodydetect components into a running service.
package app

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/capture"
	"github.com/ayusman/bodydetect/internal/command"
	"github.com/ayusman/bodydetect/internal/config"
	"github.com/ayusman/bodydetect/internal/detector"
	"github.com/ayusman/bodydetect/internal/event"
	"github.com/ayusman/bodydetect/internal/frame"
	"github.com/ayusman/bodydetect/internal/imaging"
	"github.com/ayusman/bodydetect/internal/metrics"
	"github.com/ayusman/bodydetect/internal/schedule"
	"github.com/ayusman/bodydetect/internal/session"
	"github.com/ayusman/bodydetect/internal/store"
)

// poolObserveInterval is how often frame pool occupancy is exported.
const poolObserveInterval = 5 * time.Second

// Config holds configuration options for the application.
type Config struct {
	Settings config.Config
	// Store persists preferences and session history. May be nil.
	Store *store.Store
	// Provider replaces the cameras described by Settings.
	Provider capture.Provider
	// Detectors replaces the detector backends described by Settings.
	Detectors DetectorFactory
	// Registry receives the metrics. A new registry is created if nil.
	Registry *prometheus.Registry
}

// App owns every component of a running service.
type App struct {
	config     Config
	pool       *frame.Pool
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	events     *event.Multiplexer
	codec      event.Codec
	encoder    *imaging.Encoder
	pose       detector.PoseDetector
	segmenter  detector.Segmenter
	scheduler  *schedule.Scheduler
	controller *session.Controller
	dispatcher *command.Dispatcher
	relays     []io.Closer

	mu        sync.RWMutex
	listeners []session.Listener
	stopCh    chan struct{}
	closeOnce sync.Once
}

// New creates a new App. The camera is not started.
func New(cfg Config) (*App, error) {
	settings := cfg.Settings

	codec, err := event.CodecByName(settings.Events.Codec)
	if err != nil {
		return nil, err
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	a := &App{
		config:   cfg,
		pool:     frame.NewPool(settings.Frames.PoolSize),
		registry: registry,
		metrics:  metrics.New(registry),
		codec:    codec,
		stopCh:   make(chan struct{}),
	}
	a.events = event.NewMultiplexer(a.metrics)
	a.encoder = imaging.NewEncoder(settings.Encoding.JPEGQuality, a.pool)

	factory := cfg.Detectors
	if factory == nil {
		factory = detectorFactory(settings.Detector)
	}
	if a.pose, err = factory.PoseDetector(true); err != nil {
		return nil, fmt.Errorf("pose detector: %w", err)
	}
	if a.segmenter, err = factory.Segmenter(); err != nil {
		a.pose.Close()
		return nil, fmt.Errorf("segmenter: %w", err)
	}

	a.scheduler = schedule.New(a.pose, a.segmenter, a.encoder, a.events,
		schedule.WithMetrics(a.metrics),
		schedule.WithStrictRelease(settings.Frames.StrictRelease),
	)

	provider := cfg.Provider
	if provider == nil {
		provider = capture.NewDeviceProvider(cameraDevices(settings.Camera), a.pool)
	}
	a.controller = session.New(provider, a.scheduler, a.encoder.Upright, a.metrics)

	a.dispatcher = command.New(command.Options{
		Controller: a.controller,
		Decode: func(data []byte) (*frame.Frame, error) {
			return imaging.Decode(data, a.pool)
		},
		NewPoseDetector: func() (detector.PoseDetector, error) {
			return factory.PoseDetector(false)
		},
		NewSegmenter: factory.Segmenter,
	})

	a.restorePreferences()
	a.controller.SetListener(a.onStateChange)

	fallback, relays := startRelays(settings.Events, codec, a.dispatcher)
	if fallback != nil {
		a.events.SetFallback(fallback)
	}
	a.relays = relays

	go a.observePool()
	return a, nil
}

func (a *App) restorePreferences() {
	if a.config.Store == nil {
		return
	}
	prefs, err := a.config.Store.Preferences().Load()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Warn("Failed to load preferences")
		}
		return
	}
	facing, err := capture.ParseFacing(prefs.LensFacing)
	if err != nil {
		facing = a.controller.State().LensFacing
	}
	a.controller.Restore(prefs.PoseEnabled, prefs.MaskEnabled, facing)
	log.WithFields(log.Fields{
		"pose": prefs.PoseEnabled,
		"mask": prefs.MaskEnabled,
		"lens": facing,
	}).Info("Restored preferences")
}

// onStateChange persists preferences and session history, then notifies
// the registered listeners.
func (a *App) onStateChange(prev, next session.State) {
	if s := a.config.Store; s != nil {
		if prev.PoseEnabled != next.PoseEnabled || prev.MaskEnabled != next.MaskEnabled || prev.LensFacing != next.LensFacing {
			err := s.Preferences().Save(store.Preferences{
				PoseEnabled: next.PoseEnabled,
				MaskEnabled: next.MaskEnabled,
				LensFacing:  next.LensFacing.String(),
			})
			if err != nil {
				log.WithError(err).Warn("Failed to save preferences")
			}
		}

		if !prev.CameraRunning && next.CameraRunning {
			err := s.Sessions().Begin(store.SessionRecord{
				ID:          next.Generation.String(),
				LensFacing:  next.LensFacing.String(),
				PoseEnabled: next.PoseEnabled,
				MaskEnabled: next.MaskEnabled,
				StartedAt:   time.Now(),
			})
			if err != nil {
				log.WithError(err).Warn("Failed to record session start")
			}
		}
		if prev.CameraRunning && !next.CameraRunning {
			if err := s.Sessions().End(prev.Generation.String(), time.Now()); err != nil {
				log.WithError(err).Warn("Failed to record session stop")
			}
		}
	}

	a.mu.RLock()
	listeners := a.listeners
	a.mu.RUnlock()
	for _, fn := range listeners {
		fn(prev, next)
	}
}

// AddListener registers fn to observe session state changes.
func (a *App) AddListener(fn session.Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// ApplyConfig applies the hot-reloadable settings of cfg.
func (a *App) ApplyConfig(cfg config.Config) {
	if err := config.ConfigureLogging(cfg.Log); err != nil {
		log.WithError(err).Warn("Ignoring invalid log configuration")
	}
	if q := cfg.Encoding.JPEGQuality; q != a.encoder.Quality() {
		a.encoder.SetQuality(q)
		log.WithField("quality", q).Info("JPEG quality changed")
	}
}

func (a *App) observePool() {
	ticker := time.NewTicker(poolObserveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			st := a.pool.Stats()
			a.metrics.ObservePool(st.Allocated, st.Outstanding)
		}
	}
}

// Close stops the camera and releases every resource.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		close(a.stopCh)

		if err := a.controller.Stop(); err != nil {
			errs = append(errs, err)
		}
		a.scheduler.Close()
		if err := a.dispatcher.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.pose.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.segmenter.Close(); err != nil {
			errs = append(errs, err)
		}

		a.events.SetFallback(nil)
		for _, r := range a.relays {
			if err := r.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		log.Info("Application stopped")
	})
	return errors.Join(errs...)
}

// Controller returns the camera session controller.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Dispatcher returns the command dispatcher.
func (a *App) Dispatcher() *command.Dispatcher {
	return a.dispatcher
}

// Events returns the event multiplexer.
func (a *App) Events() *event.Multiplexer {
	return a.events
}

// Codec returns the configured event codec.
func (a *App) Codec() event.Codec {
	return a.codec
}

// Registry returns the metrics registry.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Pool returns the frame buffer pool.
func (a *App) Pool() *frame.Pool {
	return a.pool
}
