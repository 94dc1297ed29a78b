// Package wsiviewer is a headless engine for an interactive whole-slide image
// viewer: pan and zoom, a magnifying lens that follows the pointer, a minimap
// with a viewport-of-interest indicator, and detection boxes placed in native
// image coordinates.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		wsiviewer "github.com/kutubofficial/WSI-detection"
//		"github.com/kutubofficial/WSI-detection/pkg/asset"
//		"github.com/kutubofficial/WSI-detection/pkg/ingest"
//		"github.com/kutubofficial/WSI-detection/pkg/types"
//	)
//
//	func main() {
//		v := wsiviewer.New()
//
//		a, err := asset.New(nil).Load(context.Background(), "slide.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		v.OnAssetLoaded(a, nil)
//
//		payload, err := ingest.LoadPayload("output.json")
//		if err != nil {
//			log.Fatal(err)
//		}
//		v.SetPayload(payload)
//
//		v.Gestures().OnWheel(-1)
//		v.PointerEnter(types.Point{X: 120, Y: 80})
//
//		frame := v.Frame()
//		log.Printf("zoom %.1f, lens visible %v, %d boxes", frame.Viewport.Zoom, frame.Lens.Visible, len(frame.Boxes))
//	}
//
// The engine consists of these components:
//
// 1. Viewport (pkg/viewport): pan offset and clamped zoom factor
// 2. Gesture (pkg/gesture): drag, wheel and pinch input routed to the viewport
// 3. Mapper (pkg/mapper): pure conversions between screen, viewer, native and minimap frames
// 4. Overlay (pkg/overlay): hover state, lens, minimap indicator and box geometry
// 5. Ingest (pkg/ingest): decoding of the upstream detection payload
//
// Every Frame is computed from a single viewport snapshot, so the image
// transform, the lens and the boxes always agree.
package wsiviewer

import (
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/kutubofficial/WSI-detection/pkg/asset"
	"github.com/kutubofficial/WSI-detection/pkg/gesture"
	"github.com/kutubofficial/WSI-detection/pkg/ingest"
	"github.com/kutubofficial/WSI-detection/pkg/mapper"
	"github.com/kutubofficial/WSI-detection/pkg/metrics"
	"github.com/kutubofficial/WSI-detection/pkg/overlay"
	"github.com/kutubofficial/WSI-detection/pkg/types"
	"github.com/kutubofficial/WSI-detection/pkg/viewport"
)

// Version of the viewer engine
const Version = "1.0.0"

// Options configures a Viewer. Zero fields take package defaults.
type Options struct {
	Viewport viewport.Config
	Overlay  overlay.Config
	Ingest   ingest.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Viewer is one viewing session.
type Viewer struct {
	state    *viewport.State
	gestures *gesture.Adapter
	renderer *overlay.Renderer
	ingestCf ingest.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	hover    overlay.Hover
	origin   types.Point
	natural  types.Size
	img      image.Image
	payload  *ingest.Payload
	ingestor *ingest.Ingestor
	boxes    []overlay.BoxOverlay
	prepared bool
}

// New creates a Viewer with default configuration
func New() *Viewer {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a Viewer with custom configuration
func NewWithOptions(opts Options) *Viewer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	vpCfg := opts.Viewport
	if vpCfg == (viewport.Config{}) {
		vpCfg = viewport.DefaultConfig()
	}
	state := viewport.NewWithConfig(vpCfg)
	return &Viewer{
		state:    state,
		gestures: gesture.NewAdapter(state, logger.With("component", "gesture"), opts.Metrics),
		renderer: overlay.NewRendererWithConfig(opts.Overlay, logger.With("component", "overlay")),
		ingestCf: opts.Ingest,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Gestures returns the adapter that feeds drag, wheel and pinch input into
// the viewport.
func (v *Viewer) Gestures() *gesture.Adapter { return v.gestures }

// Viewport returns the current pan and zoom.
func (v *Viewer) Viewport() viewport.Viewport { return v.state.Snapshot() }

// Renderer returns the overlay renderer in use.
func (v *Viewer) Renderer() *overlay.Renderer { return v.renderer }

// Reset returns to the identity viewport.
func (v *Viewer) Reset() viewport.Viewport { return v.state.Reset() }

// SetViewerOrigin records the screen position of the viewer container's
// top-left corner.
func (v *Viewer) SetViewerOrigin(p types.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.origin = p
}

// SetNaturalSize records the dimensions of a newly loaded asset. Non-positive
// sizes leave the overlays inactive.
func (v *Viewer) SetNaturalSize(s types.Size) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.natural = s
	v.logger.Info("natural size set", "width", s.Width, "height", s.Height)
}

// OnAssetLoaded is the load-completion handler for asset.Loader.LoadAsync.
// A failed load keeps the previous asset.
func (v *Viewer) OnAssetLoaded(a *asset.Asset, err error) {
	if err != nil {
		v.logger.Error("asset load failed", "error", err)
		return
	}
	if a == nil || a.Image == nil {
		return
	}
	v.mu.Lock()
	v.img = a.Image
	v.mu.Unlock()
	v.SetNaturalSize(a.NaturalSize())
}

// NaturalSize returns the asset dimensions, or types.UnknownSize before load.
func (v *Viewer) NaturalSize() types.Size {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.natural.Known() {
		return types.UnknownSize
	}
	return v.natural
}

// Image returns the loaded raster, or nil before load.
func (v *Viewer) Image() image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.img
}

// SetPayload replaces the detection payload. Boxes are decoded lazily on the
// next Frame and then reused.
func (v *Viewer) SetPayload(p *ingest.Payload) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.payload = p
	v.ingestor = ingest.NewWithConfig(p, v.ingestCf, v.logger.With("component", "ingest"), v.metrics)
	v.boxes = nil
	v.prepared = false
}

// Payload returns the current detection payload, if any.
func (v *Viewer) Payload() *ingest.Payload {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.payload
}

// PointerEnter moves the hover state to Hovering at the given screen point.
func (v *Viewer) PointerEnter(screen types.Point) {
	vp := v.state.Snapshot()
	v.mu.Lock()
	entered := v.hover.Enter(mapper.ScreenToViewerRelative(screen, v.origin, vp))
	v.mu.Unlock()
	v.metrics.ObservePointer(entered)
}

// PointerMove updates the hover position. Moves while Idle are recorded but
// do not show the overlays.
func (v *Viewer) PointerMove(screen types.Point) {
	vp := v.state.Snapshot()
	v.mu.Lock()
	v.hover.Move(mapper.ScreenToViewerRelative(screen, v.origin, vp))
	v.mu.Unlock()
	v.metrics.ObservePointer(false)
}

// PointerLeave moves the hover state to Idle.
func (v *Viewer) PointerLeave() {
	v.mu.Lock()
	v.hover.Leave()
	v.mu.Unlock()
	v.metrics.ObservePointer(false)
}

// Hover returns the current hover state.
func (v *Viewer) Hover() overlay.Hover {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hover
}

// Frame computes every overlay from one viewport snapshot.
func (v *Viewer) Frame() overlay.Frame {
	vp := v.state.Snapshot()

	v.mu.Lock()
	hover, origin, natural := v.hover, v.origin, v.natural
	boxes := v.preparedBoxes()
	v.mu.Unlock()

	f := v.renderer.Compose(vp, origin, natural, hover, boxes)
	v.metrics.ObserveFrame()
	return f
}

// preparedBoxes must be called with v.mu held.
func (v *Viewer) preparedBoxes() []overlay.BoxOverlay {
	if v.prepared {
		return v.boxes
	}
	v.prepared = true
	if v.ingestor == nil {
		v.boxes = []overlay.BoxOverlay{}
		return v.boxes
	}
	v.boxes = v.renderer.PrepareBoxes(v.ingestor.Boxes())
	return v.boxes
}
