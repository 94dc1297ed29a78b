// Package mapper converts points and boxes between the coordinate frames of
// the viewer. Every function is pure: the viewport and sizes are passed in.
//
// The image layer is drawn with translate(pan) followed by scale(zoom),
// anchored at the viewer container's top-left corner on screen. Points in
// the image layer are native image pixels.
package mapper

import (
	"github.com/kutubofficial/WSI-detection/pkg/types"
	"github.com/kutubofficial/WSI-detection/pkg/viewport"
)

// ScreenToViewerRelative maps a screen point to native image coordinates by
// removing the container origin and pan, then dividing by zoom. It is the
// exact inverse of ViewerRelativeToScreen.
func ScreenToViewerRelative(screen, origin types.Point, vp viewport.Viewport) types.Point {
	p := screen.Sub(origin).Sub(vp.Pan)
	if vp.Zoom == 0 {
		return p
	}
	return types.Point{X: p.X / vp.Zoom, Y: p.Y / vp.Zoom}
}

// ViewerRelativeToScreen applies the image layer transform to a native point.
func ViewerRelativeToScreen(p, origin types.Point, vp viewport.Viewport) types.Point {
	return origin.Add(vp.Pan).Add(p.Mul(vp.Zoom))
}

// NativeToMinimapScale returns the per-axis factors mapping native pixels into
// a minimap of the given size. ok is false until the natural size is known.
func NativeToMinimapScale(natural, minimap types.Size) (types.Scale, bool) {
	if !natural.Known() || !minimap.Known() {
		return types.Scale{}, false
	}
	return types.Scale{
		X: minimap.Width / natural.Width,
		Y: minimap.Height / natural.Height,
	}, true
}

// NativeToMinimap maps a native point into minimap pixels.
func NativeToMinimap(p types.Point, scale types.Scale) types.Point {
	return types.Point{X: p.X * scale.X, Y: p.Y * scale.Y}
}

// MinimapToNative maps a minimap point back to native pixels.
func MinimapToNative(p types.Point, scale types.Scale) (types.Point, bool) {
	if !scale.Valid() {
		return types.Point{}, false
	}
	return types.Point{X: p.X / scale.X, Y: p.Y / scale.Y}, true
}

// NativeBoxToScreenBox places a detection box in the image layer by dividing
// each corner coordinate by the per-axis reference scale. The result is drawn
// under the same pan/zoom as the image, so no viewport is applied here.
func NativeBoxToScreenBox(box types.DetectionBox, scale types.Scale) (types.Rect, bool) {
	if !scale.Valid() {
		return types.Rect{}, false
	}
	return types.Rect{
		X:      box.X0 / scale.X,
		Y:      box.Y0 / scale.Y,
		Width:  (box.X1 - box.X0) / scale.X,
		Height: (box.Y1 - box.Y0) / scale.Y,
	}, true
}

// ReferenceScale derives a natural/displayed ratio, the usual source of the
// detection reference scale when the image is shown at a fixed display size.
func ReferenceScale(natural, displayed types.Size) (types.Scale, bool) {
	if !natural.Known() || !displayed.Known() {
		return types.Scale{}, false
	}
	return types.Scale{
		X: natural.Width / displayed.Width,
		Y: natural.Height / displayed.Height,
	}, true
}
