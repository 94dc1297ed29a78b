package mapper

import (
	"fmt"

	"github.com/kutubofficial/WSI-detection/pkg/types"
	"github.com/kutubofficial/WSI-detection/pkg/viewport"
)

// Frame identifies the coordinate frame an overlay is drawn in.
type Frame int

const (
	// FrameScreen is absolute screen pixels.
	FrameScreen Frame = iota
	// FrameViewer is relative to the viewer container's top-left corner.
	FrameViewer
	// FrameImageLayer is native image pixels under the pan/zoom transform.
	FrameImageLayer
	// FrameMinimap is pixels of the fixed-size minimap canvas.
	FrameMinimap
)

func (f Frame) String() string {
	switch f {
	case FrameScreen:
		return "screen"
	case FrameViewer:
		return "viewer"
	case FrameImageLayer:
		return "image-layer"
	case FrameMinimap:
		return "minimap"
	default:
		return fmt.Sprintf("frame(%d)", int(f))
	}
}

// Transform is a uniform scale followed by a translation: p' = p*Scale + Translate.
type Transform struct {
	Translate types.Point
	Scale     float64
}

// IdentityTransform leaves points unchanged.
var IdentityTransform = Transform{Scale: 1}

// Apply maps p through the transform.
func (t Transform) Apply(p types.Point) types.Point {
	return p.Mul(t.Scale).Add(t.Translate)
}

// ApplyRect maps a rectangle through the transform.
func (t Transform) ApplyRect(r types.Rect) types.Rect {
	tl := t.Apply(r.Min())
	return types.Rect{X: tl.X, Y: tl.Y, Width: r.Width * t.Scale, Height: r.Height * t.Scale}
}

// Invert returns the inverse transform. ok is false for a zero scale.
func (t Transform) Invert() (Transform, bool) {
	if t.Scale == 0 {
		return Transform{}, false
	}
	inv := 1 / t.Scale
	return Transform{Translate: t.Translate.Mul(-inv), Scale: inv}, true
}

// Then returns the transform applying t first and next second.
func (t Transform) Then(next Transform) Transform {
	return Transform{
		Translate: next.Apply(t.Translate),
		Scale:     t.Scale * next.Scale,
	}
}

// LayerTransform is the image layer's own transform within the viewer
// container: translate(pan) then scale(zoom).
func LayerTransform(vp viewport.Viewport) Transform {
	return Transform{Translate: vp.Pan, Scale: vp.Zoom}
}

// ToScreen returns the transform bringing points of frame f to screen
// space. The minimap is a separate surface and has no screen mapping here.
func ToScreen(f Frame, origin types.Point, vp viewport.Viewport) (Transform, bool) {
	container := Transform{Translate: origin, Scale: 1}
	switch f {
	case FrameScreen:
		return IdentityTransform, true
	case FrameViewer:
		return container, true
	case FrameImageLayer:
		return LayerTransform(vp).Then(container), true
	default:
		return Transform{}, false
	}
}

// Layer declares a named visual layer and the frame its geometry is expressed in.
type Layer struct {
	Name  string
	Frame Frame
}

// Standard layers of the viewer.
var (
	LayerImage      = Layer{Name: "image", Frame: FrameImageLayer}
	LayerLens       = Layer{Name: "lens", Frame: FrameImageLayer}
	LayerDetections = Layer{Name: "detections", Frame: FrameImageLayer}
	LayerIndicator  = Layer{Name: "minimap-indicator", Frame: FrameMinimap}
)
