// Package ingest turns the upstream detection payload into detection boxes.
//
// The inference results arrive as a Python-repr style string (single quotes,
// None) rather than strict JSON. Decoding is best effort: any failure is
// logged and degrades to an empty box list.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/kutubofficial/WSI-detection/pkg/metrics"
	"github.com/kutubofficial/WSI-detection/pkg/types"
)

// Payload is the upstream record for one slide.
type Payload struct {
	Date             string `json:"date"`
	PatientID        string `json:"patient_id"`
	InferenceResults string `json:"inference_results"`
}

// ParsePayload decodes a payload from r.
func ParsePayload(r io.Reader) (*Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return &p, nil
}

// LoadPayload reads a payload JSON file.
func LoadPayload(path string) (*Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload file: %w", err)
	}
	defer f.Close()
	return ParsePayload(f)
}

// Config holds ingestion options.
type Config struct {
	Mode Mode
}

// DefaultConfig uses the tolerant decoder.
func DefaultConfig() Config {
	return Config{Mode: ModeTolerant}
}

// Result is the outcome of extracting boxes from a decoded document.
type Result struct {
	Boxes   []types.DetectionBox
	Dropped int
}

// ExtractBoxes descends into output.detection_results. A missing path yields
// no boxes; entries that are not four finite numbers are counted as dropped.
func ExtractBoxes(doc any) Result {
	root, ok := doc.(map[string]any)
	if !ok {
		return Result{Boxes: []types.DetectionBox{}}
	}
	output, ok := root["output"].(map[string]any)
	if !ok {
		return Result{Boxes: []types.DetectionBox{}}
	}
	list, ok := output["detection_results"].([]any)
	if !ok {
		return Result{Boxes: []types.DetectionBox{}}
	}
	res := Result{Boxes: make([]types.DetectionBox, 0, len(list))}
	for _, entry := range list {
		box, ok := toBox(entry)
		if !ok {
			res.Dropped++
			continue
		}
		res.Boxes = append(res.Boxes, box)
	}
	return res
}

func toBox(entry any) (types.DetectionBox, bool) {
	coords, ok := entry.([]any)
	if !ok || len(coords) != 4 {
		return types.DetectionBox{}, false
	}
	var v [4]float64
	for i, c := range coords {
		f, ok := toFloat(c)
		if !ok {
			return types.DetectionBox{}, false
		}
		v[i] = f
	}
	return types.DetectionBox{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}, true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Ingestor decodes one payload at most once.
type Ingestor struct {
	payload *Payload
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	once  sync.Once
	boxes []types.DetectionBox
	err   error
}

// New creates an Ingestor for payload with the default decoder. logger and m may be nil.
func New(payload *Payload, logger *slog.Logger, m *metrics.Metrics) *Ingestor {
	return NewWithConfig(payload, DefaultConfig(), logger, m)
}

// NewWithConfig creates an Ingestor with a custom decoder mode.
func NewWithConfig(payload *Payload, config Config, logger *slog.Logger, m *metrics.Metrics) *Ingestor {
	if config.Mode == "" {
		config.Mode = ModeTolerant
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ingestor{payload: payload, config: config, logger: logger, metrics: m}
}

// Boxes returns the detection boxes of the payload. The payload is decoded
// on the first call only; failures yield an empty list.
func (in *Ingestor) Boxes() []types.DetectionBox {
	in.once.Do(in.ingest)
	return in.boxes
}

// Err returns the decode error of the first Boxes call, if any.
func (in *Ingestor) Err() error {
	in.once.Do(in.ingest)
	return in.err
}

func (in *Ingestor) ingest() {
	in.boxes = []types.DetectionBox{}
	if in.payload == nil {
		in.err = ErrEmptyPayload
		in.logger.Error("Error parsing inference results", "error", in.err)
		in.metrics.ObserveIngest(0, 0, true)
		return
	}
	doc, err := DecodeRelaxed(in.payload.InferenceResults, in.config.Mode)
	if err != nil {
		in.err = err
		in.logger.Error("Error parsing inference results", "patient_id", in.payload.PatientID, "error", err)
		in.metrics.ObserveIngest(0, 0, true)
		return
	}
	res := ExtractBoxes(doc)
	in.boxes = res.Boxes
	if res.Dropped > 0 {
		in.logger.Warn("skipped malformed detection entries", "patient_id", in.payload.PatientID, "dropped", res.Dropped)
	}
	in.logger.Info("detection results ingested", "patient_id", in.payload.PatientID, "boxes", len(res.Boxes))
	in.metrics.ObserveIngest(len(res.Boxes), res.Dropped, false)
}
