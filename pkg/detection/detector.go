package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/kutubofficial/WSI-detection/pkg/client"
	"github.com/kutubofficial/WSI-detection/pkg/ingest"
	"github.com/kutubofficial/WSI-detection/pkg/processing"
	"github.com/kutubofficial/WSI-detection/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks for blood cell bounding boxes in the payload layout the
// viewer ingests.
const DefaultPrompt = `You are a blood smear cell locator.

Return JSON only:
{
  "output": {
    "detection_results": [[x0, y0, x1, y1], ...]
  }
}

HARD RULES
- One entry per visible cell (red cells, white cells and platelets).
- x0,y0 is the top-left corner and x1,y1 the bottom-right corner.
- All coordinates are normalized to [0,1] (NOT pixels).
- If no cell is found, return {"output": {"detection_results": []}}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config holds detector options.
type Config struct {
	Prompt  string
	MaxDim  int
	Quality int
}

// DefaultConfig returns the default prompt with images downscaled to 1024px.
func DefaultConfig() Config {
	return Config{Prompt: DefaultPrompt, MaxDim: 1024, Quality: 85}
}

// Detector asks a vision model for detection boxes and packages the reply
// as an ingest.Payload.
type Detector struct {
	client client.VisionClient
	config Config
	logger *slog.Logger

	// Now stamps payload dates.
	Now func() time.Time
}

// NewDetector creates a new detector with a vision client
func NewDetector(c client.VisionClient, logger *slog.Logger) *Detector {
	return NewDetectorWithConfig(c, DefaultConfig(), logger)
}

// NewDetectorWithConfig creates a detector with custom configuration.
func NewDetectorWithConfig(c client.VisionClient, config Config, logger *slog.Logger) *Detector {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.Quality <= 0 {
		config.Quality = DefaultConfig().Quality
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Detector{client: c, config: config, logger: logger, Now: time.Now}
}

// Detect sends img to model and returns a payload whose inference results
// hold the detected boxes in native pixels of img.
func (d *Detector) Detect(ctx context.Context, model string, img image.Image, patientID string) (*ingest.Payload, error) {
	imgB64, err := processing.PrepareImageForModel(img, "jpg", d.config.MaxDim, d.config.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	start := time.Now()
	reply, err := d.client.SimpleQuery(ctx, model, d.config.Prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("detection query failed: %w", err)
	}
	d.logger.Info("model replied", "model", model, "duration", time.Since(start), "bytes", len(reply))

	doc, err := ingest.DecodeRelaxed(reply, ingest.ModeTolerant)
	if err != nil {
		return nil, fmt.Errorf("unusable model reply: %w", err)
	}
	res := ingest.ExtractBoxes(doc)
	if res.Dropped > 0 {
		d.logger.Warn("model returned malformed boxes", "dropped", res.Dropped)
	}

	b := img.Bounds()
	sentW, sentH := modelDims(b.Dx(), b.Dy(), d.config.MaxDim)
	natural := types.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
	sent := types.Size{Width: float64(sentW), Height: float64(sentH)}

	results := make([][4]float64, 0, len(res.Boxes))
	for _, box := range res.Boxes {
		box = toNative(box, natural, sent)
		results = append(results, [4]float64{box.X0, box.Y0, box.X1, box.Y1})
	}

	raw, err := json.Marshal(map[string]any{
		"model":  model,
		"output": map[string]any{"detection_results": results},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode inference results: %w", err)
	}

	return &ingest.Payload{
		Date:             d.Now().Format("2006-01-02"),
		PatientID:        patientID,
		InferenceResults: string(raw),
	}, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model string, img image.Image) (string, error) {
	imgB64, err := processing.PrepareImageForModel(img, "jpg", d.config.MaxDim, d.config.Quality)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imgB64)
}

// toNative converts a model box into native pixels. Boxes with every
// coordinate in [0,1] are normalized; anything else is taken as pixels of
// the downscaled image that was sent.
func toNative(b types.DetectionBox, natural, sent types.Size) types.DetectionBox {
	if isNormalized(b) {
		return types.DetectionBox{
			X0: clamp(b.X0, 0, 1) * natural.Width,
			Y0: clamp(b.Y0, 0, 1) * natural.Height,
			X1: clamp(b.X1, 0, 1) * natural.Width,
			Y1: clamp(b.Y1, 0, 1) * natural.Height,
		}
	}
	sx, sy := natural.Width/sent.Width, natural.Height/sent.Height
	return types.DetectionBox{
		X0: clamp(b.X0*sx, 0, natural.Width),
		Y0: clamp(b.Y0*sy, 0, natural.Height),
		X1: clamp(b.X1*sx, 0, natural.Width),
		Y1: clamp(b.Y1*sy, 0, natural.Height),
	}
}

func isNormalized(b types.DetectionBox) bool {
	for _, v := range [4]float64{b.X0, b.Y0, b.X1, b.Y1} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// modelDims mirrors the downscale applied by processing.PrepareImageForModel.
func modelDims(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, int(math.Round(float64(h)*float64(maxDim)/float64(w))))
	}
	return max(1, int(math.Round(float64(w)*float64(maxDim)/float64(h)))), maxDim
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
