// Package metrics exposes prometheus collectors for the detection pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bodydetect"

// Metrics holds the pipeline collectors.
type Metrics struct {
	framesReceived   prometheus.Counter
	framesDisposed   prometheus.Counter
	releaseDefects   prometheus.Counter
	detections       *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	eventsUnobserved *prometheus.CounterVec
	sessionsStarted  prometheus.Counter
	poolAllocated    prometheus.Gauge
	poolOutstanding  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Camera frames delivered to the scheduler.",
		}),
		framesDisposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_disposed_total",
			Help:      "Frames whose buffers were returned after the last consumer released.",
		}),
		releaseDefects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_release_defects_total",
			Help:      "Frame releases beyond the number of granted consumers.",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detection attempts by detector kind and outcome.",
		}, []string{"kind", "outcome"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events delivered to the registered sink.",
		}, []string{"type"}),
		eventsUnobserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_unobserved_total",
			Help:      "Events published while no sink was registered.",
		}, []string{"type"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_sessions_started_total",
			Help:      "Camera sessions that reached the running state.",
		}),
		poolAllocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_pool_allocated",
			Help:      "Pixel buffers allocated by the frame pool.",
		}),
		poolOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_pool_outstanding",
			Help:      "Pixel buffers currently owned by live frames.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.framesReceived,
			m.framesDisposed,
			m.releaseDefects,
			m.detections,
			m.eventsPublished,
			m.eventsUnobserved,
			m.sessionsStarted,
			m.poolAllocated,
			m.poolOutstanding,
		)
	}
	return m
}

// Detection outcomes.
const (
	OutcomeDispatched = "dispatched"
	OutcomeSkipped    = "skipped"
	OutcomeSucceeded  = "succeeded"
	OutcomeFailed     = "failed"
)

// FrameReceived counts one frame entering the scheduler.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// FrameDisposed counts one frame buffer returned.
func (m *Metrics) FrameDisposed() {
	if m == nil {
		return
	}
	m.framesDisposed.Inc()
}

// ReleaseDefect counts one over-release.
func (m *Metrics) ReleaseDefect() {
	if m == nil {
		return
	}
	m.releaseDefects.Inc()
}

// Detection records an outcome for a detector kind.
func (m *Metrics) Detection(kind, outcome string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(kind, outcome).Inc()
}

// EventPublished counts an event handed to the sink.
func (m *Metrics) EventPublished(t string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(t).Inc()
}

// EventUnobserved counts an event published with no sink.
func (m *Metrics) EventUnobserved(t string) {
	if m == nil {
		return
	}
	m.eventsUnobserved.WithLabelValues(t).Inc()
}

// SessionStarted counts a camera session reaching running.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

// ObservePool records frame pool occupancy.
func (m *Metrics) ObservePool(allocated, outstanding int) {
	if m == nil {
		return
	}
	m.poolAllocated.Set(float64(allocated))
	m.poolOutstanding.Set(float64(outstanding))
}
