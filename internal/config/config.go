package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kutubofficial/WSI-detection/pkg/asset"
	"github.com/kutubofficial/WSI-detection/pkg/detection"
	"github.com/kutubofficial/WSI-detection/pkg/ingest"
	"github.com/kutubofficial/WSI-detection/pkg/overlay"
	"github.com/kutubofficial/WSI-detection/pkg/processing"
	"github.com/kutubofficial/WSI-detection/pkg/types"
	"github.com/kutubofficial/WSI-detection/pkg/viewport"
)

// Config holds the application configuration
type Config struct {
	Viewport  ViewportConfig  `json:"viewport"`
	Overlay   OverlayConfig   `json:"overlay"`
	Ingest    IngestConfig    `json:"ingest"`
	Asset     AssetConfig     `json:"asset"`
	Output    OutputConfig    `json:"output"`
	Inference InferenceConfig `json:"inference"`
}

// ViewportConfig bounds the zoom factor
type ViewportConfig struct {
	MinZoom      float64 `json:"min_zoom"`
	MaxZoom      float64 `json:"max_zoom"`
	WheelStep    float64 `json:"wheel_step"`
	PinchDivisor float64 `json:"pinch_divisor"`
}

// OverlayConfig holds lens, minimap and detection box geometry
type OverlayConfig struct {
	LensRadius        float64     `json:"lens_radius"`
	LensMagnification float64     `json:"lens_magnification"`
	MinimapWidth      float64     `json:"minimap_width"`
	MinimapHeight     float64     `json:"minimap_height"`
	IndicatorSpan     float64     `json:"indicator_span"`
	ReferenceScale    types.Scale `json:"reference_scale"`
	BoxPolicy         string      `json:"box_policy"`
}

// IngestConfig selects the detection payload decoder
type IngestConfig struct {
	Mode string `json:"mode"`
}

// AssetConfig holds slide loading options
type AssetConfig struct {
	MinImageSize    int    `json:"min_image_size"`
	HTTPTimeoutSecs int    `json:"http_timeout_secs"`
	UserAgent       string `json:"user_agent"`
}

// OutputConfig holds configuration for rendered frames
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	Quality       int    `json:"quality"`
	Lossless      bool   `json:"lossless"`
	OutputDir     string `json:"output_dir"`
	Prefix        string `json:"prefix"`
	ViewerWidth   int    `json:"viewer_width"`
	ViewerHeight  int    `json:"viewer_height"`
	Interpolation string `json:"interpolation"`
	Labels        bool   `json:"labels"`
}

// InferenceConfig holds the optional vision model backend
type InferenceConfig struct {
	Backend     string `json:"backend"`
	URL         string `json:"url"`
	Model       string `json:"model"`
	MaxDim      int    `json:"max_dim"`
	Quality     int    `json:"quality"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// Default returns a configuration with default values
func Default() *Config {
	vp := viewport.DefaultConfig()
	ov := overlay.DefaultConfig()
	as := asset.DefaultConfig()
	return &Config{
		Viewport: ViewportConfig{
			MinZoom:      vp.MinZoom,
			MaxZoom:      vp.MaxZoom,
			WheelStep:    vp.WheelStep,
			PinchDivisor: vp.PinchDivisor,
		},
		Overlay: OverlayConfig{
			LensRadius:        ov.LensRadius,
			LensMagnification: ov.LensMagnification,
			MinimapWidth:      ov.MinimapSize.Width,
			MinimapHeight:     ov.MinimapSize.Height,
			IndicatorSpan:     ov.IndicatorSpan,
			ReferenceScale:    ov.ReferenceScale,
			BoxPolicy:         string(ov.BoxPolicy),
		},
		Ingest: IngestConfig{
			Mode: string(ingest.ModeTolerant),
		},
		Asset: AssetConfig{
			MinImageSize:    as.MinImageSize,
			HTTPTimeoutSecs: int(as.HTTPTimeout / time.Second),
			UserAgent:       as.UserAgent,
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			Quality:       90,
			OutputDir:     "./output",
			ViewerWidth:   800,
			ViewerHeight:  600,
			Interpolation: "bilinear",
			Labels:        true,
		},
		Inference: InferenceConfig{
			Backend:     "ollama",
			URL:         "http://localhost:11434",
			MaxDim:      1024,
			Quality:     85,
			TimeoutSecs: 300,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Viewport.MinZoom <= 0 {
		return fmt.Errorf("viewport.min_zoom must be positive")
	}
	if c.Viewport.MaxZoom < c.Viewport.MinZoom {
		return fmt.Errorf("viewport.max_zoom must not be below viewport.min_zoom")
	}
	if c.Viewport.WheelStep <= 0 {
		return fmt.Errorf("viewport.wheel_step must be positive")
	}
	if c.Viewport.PinchDivisor <= 0 {
		return fmt.Errorf("viewport.pinch_divisor must be positive")
	}

	if c.Overlay.LensRadius <= 0 || c.Overlay.LensMagnification <= 0 {
		return fmt.Errorf("overlay.lens_radius and overlay.lens_magnification must be positive")
	}
	if c.Overlay.MinimapWidth <= 0 || c.Overlay.MinimapHeight <= 0 {
		return fmt.Errorf("overlay minimap dimensions must be positive")
	}
	if !c.Overlay.ReferenceScale.Valid() {
		return fmt.Errorf("overlay.reference_scale must be positive on both axes")
	}
	switch overlay.BoxPolicy(c.Overlay.BoxPolicy) {
	case overlay.BoxPolicySanitize, overlay.BoxPolicyTrust:
	default:
		return fmt.Errorf("overlay.box_policy must be %q or %q", overlay.BoxPolicySanitize, overlay.BoxPolicyTrust)
	}

	switch ingest.Mode(c.Ingest.Mode) {
	case ingest.ModeLegacy, ingest.ModeTolerant:
	default:
		return fmt.Errorf("ingest.mode must be %q or %q", ingest.ModeLegacy, ingest.ModeTolerant)
	}

	if c.Asset.MinImageSize < 1 {
		return fmt.Errorf("asset.min_image_size must be at least 1")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	switch strings.ToLower(c.Output.DefaultFormat) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.default_format must be jpg, png or webp")
	}
	if c.Output.ViewerWidth <= 0 || c.Output.ViewerHeight <= 0 {
		return fmt.Errorf("output viewer dimensions must be positive")
	}

	switch c.Inference.Backend {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("inference.backend must be ollama or llamacpp")
	}
	if c.Inference.Quality < 1 || c.Inference.Quality > 100 {
		return fmt.Errorf("inference.quality must be between 1 and 100")
	}

	return nil
}

// ViewportSettings converts the viewport section.
func (c *Config) ViewportSettings() viewport.Config {
	return viewport.Config{
		MinZoom:      c.Viewport.MinZoom,
		MaxZoom:      c.Viewport.MaxZoom,
		WheelStep:    c.Viewport.WheelStep,
		PinchDivisor: c.Viewport.PinchDivisor,
	}
}

// OverlaySettings converts the overlay section.
func (c *Config) OverlaySettings() overlay.Config {
	return overlay.Config{
		LensRadius:        c.Overlay.LensRadius,
		LensMagnification: c.Overlay.LensMagnification,
		MinimapSize:       types.Size{Width: c.Overlay.MinimapWidth, Height: c.Overlay.MinimapHeight},
		IndicatorSpan:     c.Overlay.IndicatorSpan,
		ReferenceScale:    c.Overlay.ReferenceScale,
		BoxPolicy:         overlay.BoxPolicy(c.Overlay.BoxPolicy),
	}
}

// IngestSettings converts the ingest section.
func (c *Config) IngestSettings() ingest.Config {
	return ingest.Config{Mode: ingest.Mode(c.Ingest.Mode)}
}

// CompositorSettings converts the output section.
func (c *Config) CompositorSettings() processing.Config {
	cfg := processing.DefaultConfig()
	cfg.ViewerWidth = c.Output.ViewerWidth
	cfg.ViewerHeight = c.Output.ViewerHeight
	cfg.Interpolation = c.Output.Interpolation
	cfg.Labels = c.Output.Labels
	return cfg
}

// AssetSettings converts the asset section.
func (c *Config) AssetSettings() asset.Config {
	cfg := asset.DefaultConfig()
	cfg.MinImageSize = c.Asset.MinImageSize
	if c.Asset.HTTPTimeoutSecs > 0 {
		cfg.HTTPTimeout = time.Duration(c.Asset.HTTPTimeoutSecs) * time.Second
	}
	if c.Asset.UserAgent != "" {
		cfg.UserAgent = c.Asset.UserAgent
	}
	return cfg
}

// DetectionSettings converts the inference section.
func (c *Config) DetectionSettings() detection.Config {
	cfg := detection.DefaultConfig()
	cfg.MaxDim = c.Inference.MaxDim
	cfg.Quality = c.Inference.Quality
	return cfg
}

// InferenceTimeout returns the model call timeout.
func (c *Config) InferenceTimeout() time.Duration {
	if c.Inference.TimeoutSecs <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.Inference.TimeoutSecs) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "wsi-viewer", "config.json")
}
