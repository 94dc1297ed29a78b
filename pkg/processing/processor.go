package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"github.com/kutubofficial/WSI-detection/pkg/mapper"
	"github.com/kutubofficial/WSI-detection/pkg/metrics"
	"github.com/kutubofficial/WSI-detection/pkg/overlay"
	"github.com/kutubofficial/WSI-detection/pkg/types"
)

// Config holds compositor options.
type Config struct {
	// ViewerWidth and ViewerHeight are the size of the rendered viewer container.
	ViewerWidth  int
	ViewerHeight int

	Background     color.NRGBA
	BoxColor       color.NRGBA
	LensBorder     color.NRGBA
	IndicatorColor color.NRGBA
	BoxStroke      int
	Labels         bool

	// Interpolation is one of "nearest", "bilinear" or "catmullrom".
	Interpolation string
}

// DefaultConfig returns an 800x600 viewer with red detection outlines.
func DefaultConfig() Config {
	return Config{
		ViewerWidth:    800,
		ViewerHeight:   600,
		Background:     color.NRGBA{32, 32, 32, 255},
		BoxColor:       color.NRGBA{255, 0, 0, 255},
		LensBorder:     color.NRGBA{255, 255, 255, 255},
		IndicatorColor: color.NRGBA{255, 204, 0, 255},
		BoxStroke:      2,
		Labels:         true,
		Interpolation:  "bilinear",
	}
}

// Compositor rasterizes overlay frames.
type Compositor struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCompositor creates a compositor with default configuration.
func NewCompositor(logger *slog.Logger, m *metrics.Metrics) *Compositor {
	return NewCompositorWithConfig(DefaultConfig(), logger, m)
}

// NewCompositorWithConfig creates a compositor with custom configuration.
func NewCompositorWithConfig(config Config, logger *slog.Logger, m *metrics.Metrics) *Compositor {
	def := DefaultConfig()
	if config.ViewerWidth <= 0 || config.ViewerHeight <= 0 {
		config.ViewerWidth, config.ViewerHeight = def.ViewerWidth, def.ViewerHeight
	}
	if config.BoxStroke <= 0 {
		config.BoxStroke = def.BoxStroke
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Compositor{config: config, logger: logger, metrics: m}
}

// Config returns the compositor configuration.
func (c *Compositor) Config() Config { return c.config }

// RenderFrame draws the viewer container for frame f: the slide under the
// pan/zoom transform, the detection boxes and the magnifier lens. Output
// pixels are viewer-relative, so the container origin is not applied.
func (c *Compositor) RenderFrame(src image.Image, f overlay.Frame) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("nil source image")
	}
	if f.Viewport.Zoom <= 0 {
		return nil, fmt.Errorf("invalid zoom factor: %v", f.Viewport.Zoom)
	}

	dst := imaging.New(c.config.ViewerWidth, c.config.ViewerHeight, c.config.Background)
	layer := mapper.LayerTransform(f.Viewport)

	sb := src.Bounds()
	s2d := f64.Aff3{
		layer.Scale, 0, layer.Translate.X - layer.Scale*float64(sb.Min.X),
		0, layer.Scale, layer.Translate.Y - layer.Scale*float64(sb.Min.Y),
	}
	c.interpolator().Transform(dst, s2d, src, sb, draw.Over, nil)

	for _, b := range f.Boxes {
		r := layer.ApplyRect(b.Rect)
		drawRect(dst, r, c.config.BoxColor, c.config.BoxStroke)
		if c.config.Labels {
			drawLabel(dst, int(math.Round(r.X)), int(math.Round(r.Y))-2, strconv.Itoa(b.Index), c.config.BoxColor)
		}
	}

	if f.Lens.Visible {
		c.drawLens(dst, src, f, layer)
	}

	c.metrics.ObserveRender()
	c.logger.Debug("frame rendered", "zoom", f.Viewport.Zoom, "boxes", len(f.Boxes), "lens", f.Lens.Visible)
	return dst, nil
}

// RenderMinimap draws the whole slide stretched to size and, when visible,
// the viewport-of-interest indicator.
func (c *Compositor) RenderMinimap(src image.Image, ind overlay.Indicator, size types.Size) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("nil source image")
	}
	if !size.Known() {
		return nil, fmt.Errorf("invalid minimap size: %vx%v", size.Width, size.Height)
	}
	w, h := int(math.Round(size.Width)), int(math.Round(size.Height))
	thumb := imaging.Resize(src, w, h, imaging.Linear)
	if ind.Visible {
		drawRect(thumb, ind.Rect, c.config.IndicatorColor, 1)
	}
	return thumb, nil
}

func (c *Compositor) drawLens(dst *image.NRGBA, src image.Image, f overlay.Frame, layer mapper.Transform) {
	lens := f.Lens
	fp := layer.ApplyRect(lens.Footprint())
	side := int(math.Round(fp.Width))
	if side <= 0 {
		return
	}
	mag := lens.Magnification

	canvas := imaging.New(side, side, c.config.Background)
	sr := image.Rect(
		int(math.Floor(lens.SourceRect.X)), int(math.Floor(lens.SourceRect.Y)),
		int(math.Ceil(lens.SourceRect.X+lens.SourceRect.Width)), int(math.Ceil(lens.SourceRect.Y+lens.SourceRect.Height)),
	)
	if visible := sr.Intersect(src.Bounds()); !visible.Empty() {
		crop := imaging.Crop(src, visible)
		rw := int(math.Round(float64(visible.Dx()) * mag))
		rh := int(math.Round(float64(visible.Dy()) * mag))
		if rw > 0 && rh > 0 {
			zoomed := imaging.Resize(crop, rw, rh, imaging.Lanczos)
			at := image.Pt(
				int(math.Round(float64(visible.Min.X-sr.Min.X)*mag)),
				int(math.Round(float64(visible.Min.Y-sr.Min.Y)*mag)),
			)
			canvas = imaging.Paste(canvas, zoomed, at)
		}
	}

	at := image.Pt(int(math.Round(fp.X)), int(math.Round(fp.Y)))
	r := image.Rectangle{Min: at, Max: at.Add(image.Pt(side, side))}
	mask := &circle{center: image.Pt(side/2, side/2), radius: side / 2}
	draw.DrawMask(dst, r, canvas, image.Point{}, mask, image.Point{}, draw.Over)
	drawRing(dst, at.Add(mask.center), mask.radius, c.config.LensBorder)
}

func (c *Compositor) interpolator() draw.Interpolator {
	switch strings.ToLower(c.config.Interpolation) {
	case "nearest":
		return draw.NearestNeighbor
	case "catmullrom":
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SaveImage saves an image to a file with the specified format and quality
func SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	case "jpg", "jpeg", "":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// FormatFromPath returns the output format implied by the file extension.
func FormatFromPath(path string) string {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "jpg"
	}
	switch ext := strings.ToLower(path[i+1:]); ext {
	case "jpeg":
		return "jpg"
	default:
		return ext
	}
}

// circle is an alpha mask that is opaque inside a disc.
type circle struct {
	center image.Point
	radius int
}

func (c *circle) ColorModel() color.Model { return color.AlphaModel }

func (c *circle) Bounds() image.Rectangle {
	return image.Rect(c.center.X-c.radius, c.center.Y-c.radius, c.center.X+c.radius, c.center.Y+c.radius)
}

func (c *circle) At(x, y int) color.Color {
	xx, yy, rr := float64(x-c.center.X)+0.5, float64(y-c.center.Y)+0.5, float64(c.radius)
	if xx*xx+yy*yy < rr*rr {
		return color.Alpha{255}
	}
	return color.Alpha{0}
}

func drawRect(img *image.NRGBA, r types.Rect, c color.NRGBA, stroke int) {
	x0, y0 := int(math.Round(r.X)), int(math.Round(r.Y))
	x1, y1 := int(math.Round(r.X+r.Width)), int(math.Round(r.Y+r.Height))
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if x1 == x0 {
		x1 = x0 + 1
	}
	if y1 == y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawRing(img *image.NRGBA, center image.Point, radius int, c color.NRGBA) {
	steps := int(2 * math.Pi * float64(radius))
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		x := center.X + int(math.Round(float64(radius-1)*math.Cos(a)))
		y := center.Y + int(math.Round(float64(radius-1)*math.Sin(a)))
		if image.Pt(x, y).In(img.Bounds()) {
			img.SetNRGBA(x, y, c)
		}
	}
}

func drawLabel(img *image.NRGBA, x, y int, text string, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= b.Min.X || x0 >= b.Max.X {
		return
	}
	x0 = max(x0, b.Min.X)
	x1 = min(x1, b.Max.X)
	i := img.PixOffset(x0, y)
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= b.Min.Y || y0 >= b.Max.Y {
		return
	}
	y0 = max(y0, b.Min.Y)
	y1 = min(y1, b.Max.Y)
	i := img.PixOffset(x, y0)
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
