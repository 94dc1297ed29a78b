package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kutubofficial/WSI-detection/pkg/asset"
	"github.com/kutubofficial/WSI-detection/pkg/ingest"
	"github.com/kutubofficial/WSI-detection/pkg/overlay"
	"github.com/kutubofficial/WSI-detection/pkg/viewport"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.ViewportSettings() != viewport.DefaultConfig() {
		t.Errorf("Viewport section should match package defaults, got %+v", cfg.ViewportSettings())
	}
	if cfg.OverlaySettings() != overlay.DefaultConfig() {
		t.Errorf("Overlay section should match package defaults, got %+v", cfg.OverlaySettings())
	}
	if cfg.IngestSettings().Mode != ingest.ModeTolerant {
		t.Errorf("Expected tolerant ingest mode, got %q", cfg.IngestSettings().Mode)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Viewport.MaxZoom = 5
	cfg.Ingest.Mode = string(ingest.ModeLegacy)

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Viewport.MaxZoom != 5 || loaded.Ingest.Mode != "legacy" {
		t.Errorf("Round trip lost values: %+v", loaded)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"viewport": {"max_zoom": 4}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Viewport.MaxZoom != 4 || cfg.Viewport.MinZoom != 0.5 {
		t.Errorf("Expected max 4 and default min, got %+v", cfg.Viewport)
	}
	if cfg.Overlay.LensRadius != 50 {
		t.Errorf("Untouched sections should keep defaults, got %+v", cfg.Overlay)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{not json"), 0644)
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("Expected error for malformed file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero min zoom", func(c *Config) { c.Viewport.MinZoom = 0 }},
		{"inverted zoom bounds", func(c *Config) { c.Viewport.MaxZoom = 0.1 }},
		{"zero wheel step", func(c *Config) { c.Viewport.WheelStep = 0 }},
		{"zero lens radius", func(c *Config) { c.Overlay.LensRadius = 0 }},
		{"zero minimap", func(c *Config) { c.Overlay.MinimapWidth = 0 }},
		{"bad reference scale", func(c *Config) { c.Overlay.ReferenceScale.X = 0 }},
		{"unknown box policy", func(c *Config) { c.Overlay.BoxPolicy = "clip" }},
		{"unknown ingest mode", func(c *Config) { c.Ingest.Mode = "strict" }},
		{"zero min image size", func(c *Config) { c.Asset.MinImageSize = 0 }},
		{"quality too high", func(c *Config) { c.Output.Quality = 101 }},
		{"unknown format", func(c *Config) { c.Output.DefaultFormat = "gif" }},
		{"zero viewer", func(c *Config) { c.Output.ViewerWidth = 0 }},
		{"unknown backend", func(c *Config) { c.Inference.Backend = "openai" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Output.ViewerWidth = 1024
	cfg.Inference.MaxDim = 512
	cfg.Inference.TimeoutSecs = 0

	if got := cfg.CompositorSettings(); got.ViewerWidth != 1024 || got.ViewerHeight != 600 {
		t.Errorf("Unexpected compositor settings %+v", got)
	}
	if got := cfg.DetectionSettings(); got.MaxDim != 512 || got.Prompt == "" {
		t.Errorf("Unexpected detection settings %+v", got)
	}
	if cfg.InferenceTimeout().Seconds() != 300 {
		t.Errorf("Expected default timeout, got %v", cfg.InferenceTimeout())
	}
	if got := cfg.AssetSettings(); got != asset.DefaultConfig() {
		t.Errorf("Default asset section should match loader defaults, got %+v", got)
	}

	cfg.Asset = AssetConfig{MinImageSize: 64, HTTPTimeoutSecs: 5, UserAgent: "scanner"}
	if got := cfg.AssetSettings(); got.MinImageSize != 64 || got.HTTPTimeout != 5*time.Second || got.UserAgent != "scanner" {
		t.Errorf("Unexpected asset settings %+v", got)
	}
}

func TestGetConfigPath(t *testing.T) {
	if p := GetConfigPath(); filepath.Base(p) != "config.json" {
		t.Errorf("Unexpected config path %q", p)
	}
}
