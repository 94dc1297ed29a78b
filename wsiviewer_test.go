package wsiviewer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/kutubofficial/WSI-detection/pkg/asset"
	"github.com/kutubofficial/WSI-detection/pkg/gesture"
	"github.com/kutubofficial/WSI-detection/pkg/ingest"
	"github.com/kutubofficial/WSI-detection/pkg/mapper"
	"github.com/kutubofficial/WSI-detection/pkg/metrics"
	"github.com/kutubofficial/WSI-detection/pkg/overlay"
	"github.com/kutubofficial/WSI-detection/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 64, 255})
		}
	}
	return img
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func loadedViewer(t *testing.T, w, h int) *Viewer {
	t.Helper()
	v := New()
	v.OnAssetLoaded(&asset.Asset{Source: "test", Image: createTestImage(w, h)}, nil)
	return v
}

func TestNew(t *testing.T) {
	v := New()
	if v.Gestures() == nil || v.Renderer() == nil {
		t.Fatal("New() left components nil")
	}
	if vp := v.Viewport(); vp.Zoom != 1 || vp.Pan != (types.Point{}) {
		t.Errorf("Expected identity viewport, got %+v", vp)
	}
	if v.NaturalSize() != types.UnknownSize {
		t.Errorf("Expected unknown size before load, got %+v", v.NaturalSize())
	}
}

func TestOverlaysInactiveBeforeLoad(t *testing.T) {
	v := New()
	v.PointerEnter(types.Point{X: 10, Y: 10})
	f := v.Frame()
	if f.Lens.Visible || f.Indicator.Visible {
		t.Error("Lens and indicator must stay hidden until the natural size is known")
	}

	// the reported size must keep overlays off for any caller
	if f := v.Renderer().Compose(v.Viewport(), types.Point{}, v.NaturalSize(), v.Hover(), nil); f.Lens.Visible || f.Indicator.Visible {
		t.Error("Unknown natural size must suppress the lens and minimap indicator")
	}
	if v.NaturalSize().Known() {
		t.Error("NaturalSize before load must not be a known size")
	}

	v.OnAssetLoaded(nil, errors.New("decode failed"))
	if v.Frame().Lens.Visible {
		t.Error("A failed load must not activate overlays")
	}

	v.OnAssetLoaded(&asset.Asset{Image: createTestImage(100, 100)}, nil)
	if f := v.Frame(); !f.Lens.Visible || !f.Indicator.Visible {
		t.Error("Overlays should activate once the asset has loaded")
	}
}

func TestPointerUsesViewportSnapshot(t *testing.T) {
	v := loadedViewer(t, 1000, 500)
	v.SetViewerOrigin(types.Point{X: 50, Y: 60})
	v.Gestures().OnDrag(types.Point{X: 10, Y: 20})
	v.Gestures().OnPinch(200)

	v.PointerEnter(types.Point{X: 260, Y: 180})
	h := v.Hover()
	want := types.Point{X: 100, Y: 50}
	if !approx(h.Position.X, want.X) || !approx(h.Position.Y, want.Y) {
		t.Fatalf("Expected native hover %+v, got %+v", want, h.Position)
	}

	f := v.Frame()
	if !approx(f.Indicator.Rect.X, 40) || !approx(f.Indicator.Rect.Y, 20) {
		t.Errorf("Expected indicator at (40,20), got %+v", f.Indicator.Rect)
	}
	if !approx(f.Indicator.Rect.Width, 20) || !approx(f.Indicator.Rect.Height, 20) {
		t.Errorf("Expected indicator 20x20, got %+v", f.Indicator.Rect)
	}

	// the lens is anchored at hover*zoom inside the transformed layer
	tr, _ := mapper.ToScreen(mapper.FrameImageLayer, f.Origin, f.Viewport)
	center := tr.ApplyRect(f.Lens.Footprint()).Center()
	if !approx(center.X, 50+10+2*200) || !approx(center.Y, 60+20+2*100) {
		t.Errorf("Unexpected lens center %+v", center)
	}

	// at unit zoom that is exactly under the pointer
	v.Gestures().OnPinch(100)
	v.PointerMove(types.Point{X: 260, Y: 180})
	f = v.Frame()
	tr, _ = mapper.ToScreen(mapper.FrameImageLayer, f.Origin, f.Viewport)
	center = tr.ApplyRect(f.Lens.Footprint()).Center()
	if !approx(center.X, 260) || !approx(center.Y, 180) {
		t.Errorf("Lens should be centred on the pointer at zoom 1, got %+v", center)
	}
}

func TestPointerLeaveHidesOverlays(t *testing.T) {
	v := loadedViewer(t, 200, 200)
	v.PointerEnter(types.Point{X: 10, Y: 10})
	v.PointerMove(types.Point{X: 20, Y: 30})
	if h := v.Hover(); !h.Active() || h.Position != (types.Point{X: 20, Y: 30}) {
		t.Errorf("Unexpected hover after move %+v", h)
	}
	v.PointerLeave()
	if f := v.Frame(); f.Lens.Visible || f.Indicator.Visible {
		t.Error("Overlays must hide on leave")
	}
}

func TestFrameBoxes(t *testing.T) {
	m := metrics.New()
	v := NewWithOptions(Options{Metrics: m})
	v.SetPayload(&ingest.Payload{PatientID: "1", InferenceResults: "{'output': {'detection_results': [[100, 100, 200, 150]]}}"})
	v.Gestures().OnDrag(types.Point{X: 10, Y: 20})
	v.Gestures().OnPinch(200)

	f := v.Frame()
	if len(f.Boxes) != 1 {
		t.Fatalf("Expected one box, got %d", len(f.Boxes))
	}
	got := f.ScreenBox(0)
	want := types.Rect{X: 210, Y: 220, Width: 200, Height: 100}
	if got != want {
		t.Errorf("Expected screen box %+v, got %+v", want, got)
	}

	v.Frame()
	if m.BoxesIngested.Load() != 1 {
		t.Errorf("Payload should be ingested once, got %d boxes counted", m.BoxesIngested.Load())
	}
	if m.FramesComposed.Load() != 2 {
		t.Errorf("Expected 2 frames composed, got %d", m.FramesComposed.Load())
	}
}

func TestFrameInvalidPayload(t *testing.T) {
	v := New()
	v.SetPayload(&ingest.Payload{InferenceResults: "garbage"})
	f := v.Frame()
	if f.Boxes == nil || len(f.Boxes) != 0 {
		t.Errorf("Invalid payload should render no boxes, got %#v", f.Boxes)
	}
	if v.Payload() == nil {
		t.Error("Payload should be retained")
	}
}

func TestZoomNeverLeavesBounds(t *testing.T) {
	v := New()
	for i := 0; i < 50; i++ {
		v.Gestures().OnWheel(-1)
	}
	if z := v.Viewport().Zoom; z != 3 {
		t.Errorf("Expected zoom clamped to 3, got %v", z)
	}
	v.Gestures().OnPinch(1)
	if z := v.Viewport().Zoom; z != 0.5 {
		t.Errorf("Expected zoom clamped to 0.5, got %v", z)
	}
}

func TestConcurrentUse(t *testing.T) {
	v := loadedViewer(t, 500, 500)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v.Gestures().OnWheel(float64(i%2*2 - 1))
				v.PointerMove(types.Point{X: float64(j), Y: float64(j)})
				f := v.Frame()
				if f.Viewport.Zoom < 0.5 || f.Viewport.Zoom > 3 {
					t.Errorf("Zoom out of bounds: %v", f.Viewport.Zoom)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestPlay(t *testing.T) {
	script := `[
		{"kind": "drag", "x": 10, "y": 20},
		{"kind": "wheel", "delta_y": -100},
		{"kind": "enter", "x": 120, "y": 130},
		{"kind": "frame", "name": "hover"},
		{"kind": "leave"},
		{"kind": "reset"},
		{"kind": "frame", "name": "reset"}
	]`
	steps, err := ParseScript(strings.NewReader(script))
	if err != nil {
		t.Fatalf("ParseScript failed: %v", err)
	}

	v := loadedViewer(t, 400, 400)
	var frames []overlay.Frame
	var names []string
	err = v.Play(context.Background(), steps, func(s Step, f overlay.Frame) error {
		names = append(names, s.Name)
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if len(frames) != 2 || names[0] != "hover" || names[1] != "reset" {
		t.Fatalf("Unexpected frames %v", names)
	}
	if !approx(frames[0].Viewport.Zoom, 1.1) || !frames[0].Lens.Visible {
		t.Errorf("Unexpected hover frame %+v", frames[0].Viewport)
	}
	if frames[1].Viewport.Zoom != 1 || frames[1].Lens.Visible {
		t.Errorf("Unexpected reset frame %+v", frames[1].Viewport)
	}
}

func TestPlayFinalFrameAndErrors(t *testing.T) {
	v := New()
	calls := 0
	err := v.Play(context.Background(), []Step{{Kind: "wheel", DeltaY: 1}}, func(s Step, f overlay.Frame) error {
		calls++
		if s.Name != "final" {
			t.Errorf("Expected final frame, got %q", s.Name)
		}
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("Expected one final frame, got %d calls, err %v", calls, err)
	}

	err = v.Play(context.Background(), []Step{{Kind: "rotate"}}, nil)
	if !errors.Is(err, gesture.ErrUnknownGesture) {
		t.Errorf("Expected ErrUnknownGesture, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := v.Play(ctx, []Step{{Kind: "leave"}}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func BenchmarkFrame(b *testing.B) {
	v := New()
	v.OnAssetLoaded(&asset.Asset{Image: image.NewRGBA(image.Rect(0, 0, 1000, 1000))}, nil)
	v.SetPayload(&ingest.Payload{InferenceResults: "{'output': {'detection_results': [[1,2,3,4],[5,6,7,8]]}}"})
	v.PointerEnter(types.Point{X: 100, Y: 100})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Frame()
	}
}
