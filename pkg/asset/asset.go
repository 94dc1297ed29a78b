// Package asset loads the slide raster from a file path or URL and reports
// its natural size.
package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/kutubofficial/WSI-detection/pkg/mapper"
	"github.com/kutubofficial/WSI-detection/pkg/types"
)

// ErrUnknownFormat is returned when no registered decoder accepts the data.
var ErrUnknownFormat = errors.New("image: unknown or unsupported format")

// Config holds loader options.
type Config struct {
	MinImageSize int
	HTTPTimeout  time.Duration
	UserAgent    string
}

// DefaultConfig returns the loader defaults.
func DefaultConfig() Config {
	return Config{
		MinImageSize: 1,
		HTTPTimeout:  30 * time.Second,
		UserAgent:    "WSI-Viewer/1.0",
	}
}

// Asset is a decoded slide image.
type Asset struct {
	Source string
	Image  image.Image
}

// NaturalSize returns the intrinsic pixel dimensions of the image, or
// types.UnknownSize when there is no image.
func (a *Asset) NaturalSize() types.Size {
	if a == nil || a.Image == nil {
		return types.UnknownSize
	}
	b := a.Image.Bounds()
	return types.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}

// Loader decodes slide images.
type Loader struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Loader with default configuration.
func New(logger *slog.Logger) *Loader {
	return NewWithConfig(DefaultConfig(), logger)
}

// NewWithConfig creates a Loader with custom configuration.
func NewWithConfig(config Config, logger *slog.Logger) *Loader {
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = DefaultConfig().HTTPTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig().UserAgent
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{
		config:     config,
		httpClient: &http.Client{Timeout: config.HTTPTimeout},
		logger:     logger,
	}
}

// Load decodes source, which is either an http(s) URL or a file path.
func (l *Loader) Load(ctx context.Context, source string) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		img image.Image
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		img, err = l.loadURL(ctx, source)
	} else {
		img, err = l.loadFile(source)
	}
	if err != nil {
		return nil, err
	}
	if err := l.Validate(img); err != nil {
		return nil, err
	}
	a := &Asset{Source: source, Image: img}
	size := a.NaturalSize()
	l.logger.Info("asset loaded", "source", source, "width", size.Width, "height", size.Height)
	return a, nil
}

// LoadAsync decodes source on its own goroutine and calls done exactly once
// with the result. It plays the role of the image load-completion event.
func (l *Loader) LoadAsync(ctx context.Context, source string, done func(*Asset, error)) {
	go func() {
		a, err := l.Load(ctx, source)
		if err != nil {
			l.logger.Error("asset load failed", "source", source, "error", err)
		}
		done(a, err)
	}()
}

// Validate checks the image against the minimum dimension.
func (l *Loader) Validate(img image.Image) error {
	if img == nil {
		return errors.New("nil image")
	}
	b := img.Bounds()
	if b.Dx() < l.config.MinImageSize || b.Dy() < l.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)", b.Dx(), b.Dy(), l.config.MinImageSize)
	}
	return nil
}

func (l *Loader) loadFile(path string) (image.Image, error) {
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func (l *Loader) loadURL(ctx context.Context, source string) (image.Image, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.config.UserAgent)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return Decode(data)
}

// Decode decodes raw image bytes with the registered decoders, falling back
// to the libwebp decoder.
func Decode(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, ErrUnknownFormat
}

// DisplayScale returns the natural/displayed ratio of an image shown at a
// fixed display size. ok is false while either size is unknown.
func DisplayScale(natural, displayed types.Size) (types.Scale, bool) {
	return mapper.ReferenceScale(natural, displayed)
}
