package overlay

import (
	"math"
	"testing"

	"github.com/kutubofficial/WSI-detection/pkg/mapper"
	"github.com/kutubofficial/WSI-detection/pkg/types"
	"github.com/kutubofficial/WSI-detection/pkg/viewport"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func approxRect(a, b types.Rect) bool {
	return approx(a.X, b.X) && approx(a.Y, b.Y) && approx(a.Width, b.Width) && approx(a.Height, b.Height)
}

func TestHoverStateMachine(t *testing.T) {
	var h Hover
	if h.Active() {
		t.Fatal("Zero hover must be idle")
	}
	h.Move(types.Point{X: 1, Y: 1})
	if h.Active() {
		t.Error("Move must not change state")
	}
	if !h.Enter(types.Point{X: 5, Y: 6}) {
		t.Error("Enter from idle should report a change")
	}
	if h.Enter(types.Point{X: 7, Y: 8}) {
		t.Error("Enter while hovering should not report a change")
	}
	h.Move(types.Point{X: 9, Y: 10})
	if !h.Active() || h.Position != (types.Point{X: 9, Y: 10}) {
		t.Errorf("Unexpected hover %+v", h)
	}
	if !h.Leave() || h.Active() {
		t.Error("Leave should return to idle")
	}
	if h.Leave() {
		t.Error("Leave while idle should not report a change")
	}
}

func TestIndicatorEndToEnd(t *testing.T) {
	r := NewRenderer(nil)
	h := Hover{}
	h.Enter(types.Point{X: 100, Y: 50})

	ind := r.Indicator(h, types.Size{Width: 1000, Height: 500})
	if !ind.Visible {
		t.Fatal("Indicator should be visible while hovering")
	}
	if !approx(ind.Scale.X, 0.4) || !approx(ind.Scale.Y, 0.4) {
		t.Errorf("Expected scale (0.4,0.4), got %+v", ind.Scale)
	}
	want := types.Rect{X: 40, Y: 20, Width: 20, Height: 20}
	if !approxRect(ind.Rect, want) {
		t.Errorf("Expected %+v, got %+v", want, ind.Rect)
	}
	if ind.Layer.Frame != mapper.FrameMinimap {
		t.Errorf("Indicator must be drawn in the minimap frame, got %v", ind.Layer.Frame)
	}
}

func TestOverlaysHiddenWhenIdle(t *testing.T) {
	r := NewRenderer(nil)
	natural := types.Size{Width: 1000, Height: 500}
	vp := viewport.Identity

	var h Hover
	h.Move(types.Point{X: 10, Y: 10})
	f := r.Compose(vp, types.Point{}, natural, h, nil)
	if f.Lens.Visible || f.Indicator.Visible {
		t.Error("Lens and indicator must be hidden while idle")
	}

	h.Enter(types.Point{X: 300, Y: 200})
	f = r.Compose(vp, types.Point{}, natural, h, nil)
	if !f.Lens.Visible || !f.Indicator.Visible {
		t.Fatal("Lens and indicator must show immediately on enter")
	}
	if !approx(f.Indicator.Rect.X, 120) || !approx(f.Indicator.Rect.Y, 80) {
		t.Errorf("Indicator should use the entry position, got %+v", f.Indicator.Rect)
	}
}

func TestOverlaysHiddenUntilSizeKnown(t *testing.T) {
	r := NewRenderer(nil)
	var h Hover
	h.Enter(types.Point{X: 10, Y: 10})
	for _, natural := range []types.Size{types.UnknownSize, {Width: 0, Height: 100}, {Width: -1, Height: 5}} {
		f := r.Compose(viewport.Identity, types.Point{}, natural, h, nil)
		if f.Lens.Visible || f.Indicator.Visible {
			t.Errorf("Overlays must be inactive for natural size %+v", natural)
		}
	}
}

func TestLensGeometry(t *testing.T) {
	r := NewRenderer(nil)
	var h Hover
	h.Enter(types.Point{X: 100, Y: 40})
	natural := types.Size{Width: 1000, Height: 500}
	origin := types.Point{X: 20, Y: 30}

	for _, zoom := range []float64{0.5, 1, 2, 3} {
		vp := viewport.Viewport{Pan: types.Point{X: 10, Y: 20}, Zoom: zoom}
		lens := r.Lens(h, vp, natural)
		if !lens.Visible {
			t.Fatalf("zoom %f: lens should be visible", zoom)
		}
		if !approx(lens.Anchor.X, 100*zoom) || !approx(lens.Anchor.Y, 40*zoom) {
			t.Errorf("zoom %f: unexpected anchor %+v", zoom, lens.Anchor)
		}
		if !approx(lens.Scale, 2/zoom) {
			t.Errorf("zoom %f: expected scale %f, got %f", zoom, 2/zoom, lens.Scale)
		}
		if lens.ContentOffset != lens.Anchor.Mul(-1) {
			t.Errorf("zoom %f: content offset should negate anchor", zoom)
		}
		fp := lens.ScreenFootprint(origin, vp)
		if !approx(fp.Width, 200) || !approx(fp.Height, 200) {
			t.Errorf("zoom %f: on-screen lens should stay 200px, got %fx%f", zoom, fp.Width, fp.Height)
		}
	}

	lens := r.Lens(h, viewport.Identity, natural)
	want := types.Rect{X: 50, Y: -10, Width: 100, Height: 100}
	if !approxRect(lens.SourceRect, want) {
		t.Errorf("Expected source rect %+v, got %+v", want, lens.SourceRect)
	}
}

func TestDetectionBoxEndToEnd(t *testing.T) {
	r := NewRenderer(nil)
	boxes := r.PrepareBoxes([]types.DetectionBox{{X0: 100, Y0: 100, X1: 200, Y1: 150}})
	if len(boxes) != 1 {
		t.Fatalf("Expected one box, got %d", len(boxes))
	}
	want := types.Rect{X: 100, Y: 100, Width: 100, Height: 50}
	if boxes[0].Rect != want {
		t.Errorf("Expected layer rect %+v, got %+v", want, boxes[0].Rect)
	}

	vp := viewport.Viewport{Pan: types.Point{X: 10, Y: 20}, Zoom: 2}
	f := r.Compose(vp, types.Point{}, types.Size{Width: 1000, Height: 500}, Hover{}, boxes)
	if f.Boxes[0].Rect != want {
		t.Error("Compose must not apply the viewport to box rects")
	}
	screen := f.ScreenBox(0)
	wantScreen := types.Rect{X: 210, Y: 220, Width: 200, Height: 100}
	if !approxRect(screen, wantScreen) {
		t.Errorf("Expected screen rect %+v, got %+v", wantScreen, screen)
	}
}

func TestPrepareBoxesPolicies(t *testing.T) {
	input := []types.DetectionBox{
		{X0: 200, Y0: 150, X1: 100, Y1: 100},
		{X0: math.NaN(), Y0: 0, X1: 1, Y1: 1},
		{X0: 0, Y0: 0, X1: 10, Y1: 10},
	}

	sanitized := NewRenderer(nil).PrepareBoxes(input)
	if len(sanitized) != 2 {
		t.Fatalf("Expected NaN box dropped, got %d boxes", len(sanitized))
	}
	if sanitized[0].Rect != (types.Rect{X: 100, Y: 100, Width: 100, Height: 50}) {
		t.Errorf("Inverted box should be reordered, got %+v", sanitized[0].Rect)
	}
	if sanitized[1].Index != 2 {
		t.Errorf("Index should refer to the input position, got %d", sanitized[1].Index)
	}

	cfg := DefaultConfig()
	cfg.BoxPolicy = BoxPolicyTrust
	trusted := NewRendererWithConfig(cfg, nil).PrepareBoxes(input)
	if len(trusted) != 3 {
		t.Fatalf("Trust policy keeps every box, got %d", len(trusted))
	}
	if trusted[0].Rect.Width != -100 {
		t.Errorf("Trust policy should render as-is, got width %f", trusted[0].Rect.Width)
	}
}

func TestReferenceScaleApplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReferenceScale = types.Scale{X: 4, Y: 2}
	r := NewRendererWithConfig(cfg, nil)
	boxes := r.PrepareBoxes([]types.DetectionBox{{X0: 400, Y0: 200, X1: 800, Y1: 300}})
	want := types.Rect{X: 100, Y: 100, Width: 100, Height: 50}
	if boxes[0].Rect != want {
		t.Errorf("Expected %+v, got %+v", want, boxes[0].Rect)
	}
}

func TestNewRendererWithConfigDefaults(t *testing.T) {
	r := NewRendererWithConfig(Config{}, nil)
	if r.Config() != DefaultConfig() {
		t.Errorf("Expected defaults for zero config, got %+v", r.Config())
	}
}
