package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	wsiviewer "github.com/kutubofficial/WSI-detection"
	"github.com/kutubofficial/WSI-detection/internal/config"
	"github.com/kutubofficial/WSI-detection/internal/utils"
	"github.com/kutubofficial/WSI-detection/pkg/asset"
	"github.com/kutubofficial/WSI-detection/pkg/client"
	"github.com/kutubofficial/WSI-detection/pkg/detection"
	"github.com/kutubofficial/WSI-detection/pkg/ingest"
	"github.com/kutubofficial/WSI-detection/pkg/llamacpp"
	"github.com/kutubofficial/WSI-detection/pkg/metrics"
	"github.com/kutubofficial/WSI-detection/pkg/ollama"
	"github.com/kutubofficial/WSI-detection/pkg/overlay"
	"github.com/kutubofficial/WSI-detection/pkg/processing"
	"github.com/kutubofficial/WSI-detection/pkg/report"
	"github.com/kutubofficial/WSI-detection/pkg/types"
)

func main() {
	var in, payloadPath, scriptPath, outDir, ext, configPath string
	var backend, url, model, patientID, ingestMode string
	var metricsAddr, logLevel string
	var quality int
	var lossless, noReport, writeConfig, testVision bool

	flag.StringVar(&in, "in", "", "slide image path or URL (jpg/png/webp)")
	flag.StringVar(&payloadPath, "payload", "", "detection payload JSON (date, patient_id, inference_results)")
	flag.StringVar(&scriptPath, "script", "", "interaction script JSON (drag/wheel/pinch/enter/move/leave/frame steps)")
	flag.StringVar(&outDir, "out", "", "output directory (default from config)")
	flag.StringVar(&ext, "ext", "", "output format: jpg|png|webp (default from config)")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	flag.StringVar(&configPath, "config", "", "config file (default "+config.GetConfigPath()+" if present)")
	flag.BoolVar(&writeConfig, "write-config", false, "write the effective config to -config and exit")

	flag.StringVar(&backend, "backend", "", "inference backend when no payload is given: ollama or llamacpp")
	flag.StringVar(&url, "url", "", "inference server URL")
	flag.StringVar(&model, "model", "", "vision model name; enables inference when -payload is empty")
	flag.StringVar(&patientID, "patient", "", "patient ID stamped on an inferred payload")
	flag.StringVar(&ingestMode, "ingest-mode", "", "payload decoder: tolerant|legacy")
	flag.BoolVar(&testVision, "test-vision", false, "ask the model to describe the slide before detection, as a connectivity check")

	flag.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address and wait for a signal")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flag.BoolVar(&noReport, "no-report", false, "do not print the patient report")
	flag.Parse()

	cfg := loadConfig(configPath)
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
	if ext != "" {
		cfg.Output.DefaultFormat = ext
	}
	if quality > 0 {
		cfg.Output.Quality = quality
	}
	if lossless {
		cfg.Output.Lossless = true
	}
	if backend != "" {
		cfg.Inference.Backend = backend
	}
	if url != "" {
		cfg.Inference.URL = url
	}
	if model != "" {
		cfg.Inference.Model = model
	}
	if ingestMode != "" {
		cfg.Ingest.Mode = ingestMode
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if writeConfig {
		path := configPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if err := cfg.SaveToFile(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", path)
		return
	}

	if in == "" {
		log.Fatalf("usage: %s -in slide.png|URL [-payload output.json | -model name] [-script steps.json] [-out outdir] [-ext png|jpg|webp]", filepath.Base(os.Args[0]))
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(logLevel)
	m := metrics.New()
	if metricsAddr != "" {
		serveMetrics(metricsAddr, m, logger)
	}

	viewer := wsiviewer.NewWithOptions(wsiviewer.Options{
		Viewport: cfg.ViewportSettings(),
		Overlay:  cfg.OverlaySettings(),
		Ingest:   cfg.IngestSettings(),
		Logger:   logger,
		Metrics:  m,
	})

	loader := asset.NewWithConfig(cfg.AssetSettings(), logger.With("component", "asset"))
	loaded := make(chan error, 1)
	loader.LoadAsync(ctx, in, func(a *asset.Asset, err error) {
		viewer.OnAssetLoaded(a, err)
		loaded <- err
	})
	if err := <-loaded; err != nil {
		log.Fatal(err)
	}

	payload, err := resolvePayload(ctx, cfg, payloadPath, patientID, testVision, viewer, logger)
	if err != nil {
		log.Fatal(err)
	}
	if payload != nil {
		viewer.SetPayload(payload)
	}

	steps := defaultScript(viewer.NaturalSize())
	if scriptPath != "" {
		if steps, err = wsiviewer.LoadScript(scriptPath); err != nil {
			log.Fatal(err)
		}
	}

	compositor := processing.NewCompositorWithConfig(cfg.CompositorSettings(), logger.With("component", "compositor"), m)
	minimapSize := cfg.OverlaySettings().MinimapSize
	n := 0
	err = viewer.Play(ctx, steps, func(s wsiviewer.Step, f overlay.Frame) error {
		n++
		return writeFrame(cfg, compositor, viewer, in, n, s, f, minimapSize)
	})
	if err != nil {
		log.Fatal(err)
	}

	if !noReport {
		var h report.Header
		if payload != nil {
			h = report.Header{Date: payload.Date, PatientID: payload.PatientID}
		}
		if err := report.Write(os.Stdout, h, report.DefaultPatientReport()); err != nil {
			log.Fatal(err)
		}
	}

	if metricsAddr != "" {
		logger.Info("serving metrics until interrupted", "addr", metricsAddr)
		<-ctx.Done()
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return config.Default()
		}
	} else if !utils.FileExists(path) {
		// -write-config may create it
		return config.Default()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// resolvePayload reads the payload file or, when a model is configured,
// runs inference on the loaded slide and writes the result next to the frames.
func resolvePayload(ctx context.Context, cfg *config.Config, path, patientID string, testVision bool, viewer *wsiviewer.Viewer, logger *slog.Logger) (*ingest.Payload, error) {
	if path != "" {
		return ingest.LoadPayload(path)
	}
	if cfg.Inference.Model == "" {
		logger.Info("no payload and no model; rendering without detections")
		return nil, nil
	}

	var vc client.VisionClient
	var err error
	switch cfg.Inference.Backend {
	case "ollama":
		vc, err = ollama.NewClient(cfg.Inference.URL)
	case "llamacpp":
		vc, err = llamacpp.NewClient(cfg.Inference.URL)
	default:
		err = fmt.Errorf("unknown backend: %s", cfg.Inference.Backend)
	}
	if err != nil {
		return nil, err
	}

	detector := detection.NewDetectorWithConfig(vc, cfg.DetectionSettings(), logger.With("component", "detection"))
	qctx, cancel := context.WithTimeout(ctx, cfg.InferenceTimeout())
	defer cancel()
	payload, err := inferPayload(qctx, detector, cfg.Inference.Model, viewer.Image(), patientID, testVision, logger)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(cfg.Output.OutputDir, "payload.json")
	if err := savePayload(payload, out); err != nil {
		logger.Warn("could not save payload", "path", out, "error", err)
	} else {
		log.Printf("wrote %s", out)
	}
	return payload, nil
}

// inferPayload runs detection, optionally preceded by a vision check that
// fails fast when the model cannot see images at all.
func inferPayload(ctx context.Context, d *detection.Detector, model string, img image.Image, patientID string, testVision bool, logger *slog.Logger) (*ingest.Payload, error) {
	if testVision {
		reply, err := d.TestVision(ctx, model, img)
		if err != nil {
			return nil, fmt.Errorf("vision check failed: %w", err)
		}
		logger.Info("vision check", "model", model, "reply", reply)
	}
	return d.Detect(ctx, model, img, patientID)
}

func savePayload(p *ingest.Payload, path string) error {
	js, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	return os.WriteFile(path, js, 0o644)
}

// defaultScript hovers over the slide center at the identity viewport.
func defaultScript(natural types.Size) []wsiviewer.Step {
	return []wsiviewer.Step{
		{Kind: wsiviewer.StepEnter, X: natural.Width / 2, Y: natural.Height / 2},
		{Kind: wsiviewer.StepFrame, Name: "center"},
	}
}

func writeFrame(cfg *config.Config, c *processing.Compositor, viewer *wsiviewer.Viewer, in string, n int, s wsiviewer.Step, f overlay.Frame, minimap types.Size) error {
	img := viewer.Image()
	if img == nil {
		return errors.New("no slide loaded")
	}
	name := s.Name
	if name == "" {
		name = fmt.Sprintf("%03d", n)
	}
	name = utils.SanitizeFilename(name)
	format := cfg.Output.DefaultFormat

	frame, err := c.RenderFrame(img, f)
	if err != nil {
		return err
	}
	framePath := utils.GenerateOutputFilename(in, cfg.Output.OutputDir, cfg.Output.Prefix, "_"+name, format)
	if err := processing.SaveImage(frame, framePath, format, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
		return fmt.Errorf("save %s failed: %w", framePath, err)
	}
	log.Printf("wrote %s", framePath)

	mini, err := c.RenderMinimap(img, f.Indicator, minimap)
	if err != nil {
		return err
	}
	miniPath := utils.GenerateOutputFilename(in, cfg.Output.OutputDir, cfg.Output.Prefix, "_"+name+"_minimap", format)
	if err := processing.SaveImage(mini, miniPath, format, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
		return fmt.Errorf("save %s failed: %w", miniPath, err)
	}
	log.Printf("wrote %s", miniPath)
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}
