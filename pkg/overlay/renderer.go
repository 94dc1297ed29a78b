package overlay

import (
	"io"
	"log/slog"

	"github.com/kutubofficial/WSI-detection/pkg/mapper"
	"github.com/kutubofficial/WSI-detection/pkg/types"
	"github.com/kutubofficial/WSI-detection/pkg/viewport"
)

// BoxPolicy decides what happens to detection boxes with inverted or
// non-finite coordinates.
type BoxPolicy string

const (
	// BoxPolicySanitize reorders inverted corners and drops non-finite boxes.
	BoxPolicySanitize BoxPolicy = "sanitize"
	// BoxPolicyTrust renders boxes exactly as received.
	BoxPolicyTrust BoxPolicy = "trust"
)

// Config holds overlay geometry constants.
type Config struct {
	LensRadius        float64
	LensMagnification float64
	MinimapSize       types.Size
	IndicatorSpan     float64
	ReferenceScale    types.Scale
	BoxPolicy         BoxPolicy
}

// DefaultConfig returns a 50px lens at 2x, a 400x200 minimap with a 50px
// indicator span and a unit reference scale.
func DefaultConfig() Config {
	return Config{
		LensRadius:        50,
		LensMagnification: 2,
		MinimapSize:       types.Size{Width: 400, Height: 200},
		IndicatorSpan:     50,
		ReferenceScale:    types.Scale{X: 1, Y: 1},
		BoxPolicy:         BoxPolicySanitize,
	}
}

// Lens is the magnifier geometry in the image layer. The lens element is a
// square of side 2*Radius centred on Anchor and scaled by Scale; its content
// is the image shifted by ContentOffset.
type Lens struct {
	Visible       bool
	Layer         mapper.Layer
	Anchor        types.Point
	Radius        float64
	Scale         float64
	Magnification float64
	ContentOffset types.Point
	// SourceRect is the native region shown inside the lens.
	SourceRect types.Rect
}

// Footprint returns the lens square in image layer coordinates.
func (l Lens) Footprint() types.Rect {
	side := 2 * l.Radius * l.Scale
	return types.Rect{X: l.Anchor.X - side/2, Y: l.Anchor.Y - side/2, Width: side, Height: side}
}

// ScreenFootprint returns the lens square in screen pixels. Its side is
// 2*Radius*Magnification for every zoom factor.
func (l Lens) ScreenFootprint(origin types.Point, vp viewport.Viewport) types.Rect {
	tr, _ := mapper.ToScreen(l.Layer.Frame, origin, vp)
	return tr.ApplyRect(l.Footprint())
}

// Indicator is the viewport-of-interest rectangle inside the minimap.
type Indicator struct {
	Visible bool
	Layer   mapper.Layer
	Scale   types.Scale
	Rect    types.Rect
}

// BoxOverlay is one detection box placed in the image layer.
type BoxOverlay struct {
	Index int
	Box   types.DetectionBox
	Rect  types.Rect
}

// Frame is every overlay computed from one viewport snapshot.
type Frame struct {
	Viewport  viewport.Viewport
	Origin    types.Point
	Natural   types.Size
	Hover     Hover
	Image     mapper.Transform
	Lens      Lens
	Indicator Indicator
	Boxes     []BoxOverlay
}

// ScreenBox returns the on-screen rectangle of the i-th box.
func (f Frame) ScreenBox(i int) types.Rect {
	tr, _ := mapper.ToScreen(mapper.LayerDetections.Frame, f.Origin, f.Viewport)
	return tr.ApplyRect(f.Boxes[i].Rect)
}

// Renderer computes overlay geometry.
type Renderer struct {
	config Config
	logger *slog.Logger
}

// NewRenderer creates a Renderer with default geometry.
func NewRenderer(logger *slog.Logger) *Renderer {
	return NewRendererWithConfig(DefaultConfig(), logger)
}

// NewRendererWithConfig creates a Renderer with custom geometry. Unset
// fields fall back to defaults.
func NewRendererWithConfig(config Config, logger *slog.Logger) *Renderer {
	def := DefaultConfig()
	if config.LensRadius <= 0 {
		config.LensRadius = def.LensRadius
	}
	if config.LensMagnification <= 0 {
		config.LensMagnification = def.LensMagnification
	}
	if !config.MinimapSize.Known() {
		config.MinimapSize = def.MinimapSize
	}
	if config.IndicatorSpan <= 0 {
		config.IndicatorSpan = def.IndicatorSpan
	}
	if !config.ReferenceScale.Valid() {
		config.ReferenceScale = def.ReferenceScale
	}
	if config.BoxPolicy != BoxPolicyTrust {
		config.BoxPolicy = BoxPolicySanitize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Renderer{config: config, logger: logger}
}

// Config returns the geometry in effect.
func (r *Renderer) Config() Config { return r.config }

// Lens computes the magnifier for the given hover and viewport.
func (r *Renderer) Lens(h Hover, vp viewport.Viewport, natural types.Size) Lens {
	lens := Lens{Layer: mapper.LayerLens, Radius: r.config.LensRadius, Magnification: r.config.LensMagnification}
	if !h.Active() || !natural.Known() || vp.Zoom <= 0 {
		return lens
	}
	anchor := h.Position.Mul(vp.Zoom)
	lens.Visible = true
	lens.Anchor = anchor
	lens.Scale = r.config.LensMagnification / vp.Zoom
	lens.ContentOffset = anchor.Mul(-1)
	lens.SourceRect = types.Rect{
		X:      h.Position.X - r.config.LensRadius,
		Y:      h.Position.Y - r.config.LensRadius,
		Width:  2 * r.config.LensRadius,
		Height: 2 * r.config.LensRadius,
	}
	return lens
}

// Indicator computes the minimap indicator. It stays hidden while Idle or
// while the natural size is unknown.
func (r *Renderer) Indicator(h Hover, natural types.Size) Indicator {
	ind := Indicator{Layer: mapper.LayerIndicator}
	if !h.Active() {
		return ind
	}
	scale, ok := mapper.NativeToMinimapScale(natural, r.config.MinimapSize)
	if !ok {
		return ind
	}
	pos := mapper.NativeToMinimap(h.Position, scale)
	ind.Visible = true
	ind.Scale = scale
	ind.Rect = types.Rect{
		X:      pos.X,
		Y:      pos.Y,
		Width:  r.config.IndicatorSpan * scale.X,
		Height: r.config.IndicatorSpan * scale.Y,
	}
	return ind
}

// PrepareBoxes places detection boxes in the image layer according to the
// box policy. Box placement does not depend on the viewport, so callers
// compute it once per ingested list.
func (r *Renderer) PrepareBoxes(boxes []types.DetectionBox) []BoxOverlay {
	out := make([]BoxOverlay, 0, len(boxes))
	for i, b := range boxes {
		if r.config.BoxPolicy == BoxPolicySanitize {
			if !b.Finite() {
				r.logger.Warn("dropping non-finite detection box", "index", i)
				continue
			}
			if !b.Ordered() {
				b = b.Normalize()
			}
		}
		rect, ok := mapper.NativeBoxToScreenBox(b, r.config.ReferenceScale)
		if !ok {
			continue
		}
		out = append(out, BoxOverlay{Index: i, Box: b, Rect: rect})
	}
	return out
}

// Compose builds a complete Frame. vp must be a single snapshot; every layer
// in the frame is derived from it.
func (r *Renderer) Compose(vp viewport.Viewport, origin types.Point, natural types.Size, h Hover, boxes []BoxOverlay) Frame {
	return Frame{
		Viewport:  vp,
		Origin:    origin,
		Natural:   natural,
		Hover:     h,
		Image:     mapper.LayerTransform(vp),
		Lens:      r.Lens(h, vp, natural),
		Indicator: r.Indicator(h, natural),
		Boxes:     boxes,
	}
}
