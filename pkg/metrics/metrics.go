package metrics

import (
	"math"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds viewer interaction counters. A nil *Metrics is valid and
// records nothing, so components can take one optionally.
type Metrics struct {
	// Gesture counters
	DragEvents  atomic.Uint64
	WheelEvents atomic.Uint64
	PinchEvents atomic.Uint64
	ZoomClamps  atomic.Uint64

	// Pointer / hover
	PointerEvents atomic.Uint64
	HoverEnters   atomic.Uint64

	// Rendering
	FramesComposed atomic.Uint64
	FramesRendered atomic.Uint64

	// Ingestion
	IngestFailures atomic.Uint64
	BoxesIngested  atomic.Uint64
	BoxesDropped   atomic.Uint64

	// Current zoom factor stored as float64 bits
	zoomBits atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.zoomBits.Store(math.Float64bits(1))
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counter := func(name, help string, v *atomic.Uint64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		))
	}
	counter("wsiviewer_drag_events_total", "Drag gestures applied to the viewport", &m.DragEvents)
	counter("wsiviewer_wheel_events_total", "Wheel gestures applied to the viewport", &m.WheelEvents)
	counter("wsiviewer_pinch_events_total", "Pinch gestures applied to the viewport", &m.PinchEvents)
	counter("wsiviewer_zoom_clamps_total", "Zoom mutations clipped by the zoom bounds", &m.ZoomClamps)
	counter("wsiviewer_pointer_events_total", "Pointer enter/move/leave events", &m.PointerEvents)
	counter("wsiviewer_hover_enters_total", "Idle to Hovering transitions", &m.HoverEnters)
	counter("wsiviewer_frames_composed_total", "Overlay frames computed", &m.FramesComposed)
	counter("wsiviewer_frames_rendered_total", "Frames rasterized by the compositor", &m.FramesRendered)
	counter("wsiviewer_ingest_failures_total", "Detection payloads that failed to decode", &m.IngestFailures)
	counter("wsiviewer_boxes_ingested_total", "Detection boxes accepted from payloads", &m.BoxesIngested)
	counter("wsiviewer_boxes_dropped_total", "Detection entries skipped as malformed", &m.BoxesDropped)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "wsiviewer_zoom_factor",
			Help: "Current viewport zoom factor",
		},
		func() float64 { return m.Zoom() },
	))
}

// Handler returns an HTTP handler serving the registry in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveGesture counts one gesture of the given kind ("drag", "wheel", "pinch").
func (m *Metrics) ObserveGesture(kind string, zoom float64, clamped bool) {
	if m == nil {
		return
	}
	switch kind {
	case "drag":
		m.DragEvents.Add(1)
	case "wheel":
		m.WheelEvents.Add(1)
	case "pinch":
		m.PinchEvents.Add(1)
	}
	if clamped {
		m.ZoomClamps.Add(1)
	}
	m.zoomBits.Store(math.Float64bits(zoom))
}

// ObservePointer counts a pointer event; entered marks an Idle->Hovering transition.
func (m *Metrics) ObservePointer(entered bool) {
	if m == nil {
		return
	}
	m.PointerEvents.Add(1)
	if entered {
		m.HoverEnters.Add(1)
	}
}

// ObserveFrame counts a composed overlay frame.
func (m *Metrics) ObserveFrame() {
	if m == nil {
		return
	}
	m.FramesComposed.Add(1)
}

// ObserveRender counts a rasterized frame.
func (m *Metrics) ObserveRender() {
	if m == nil {
		return
	}
	m.FramesRendered.Add(1)
}

// ObserveIngest records the outcome of one detection payload ingestion.
func (m *Metrics) ObserveIngest(accepted, dropped int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.IngestFailures.Add(1)
	}
	m.BoxesIngested.Add(uint64(accepted))
	m.BoxesDropped.Add(uint64(dropped))
}

// Zoom returns the last observed zoom factor.
func (m *Metrics) Zoom() float64 {
	if m == nil {
		return 0
	}
	return math.Float64frombits(m.zoomBits.Load())
}
