// Package viewport holds the pan offset and zoom factor of the slide viewer.
//
// All mutation goes through State, which clamps the zoom factor at the
// mutation boundary so no reader ever observes an out-of-range value.
package viewport

import (
	"math"
	"sync"

	"github.com/kutubofficial/WSI-detection/pkg/types"
)

// Config bounds and steps the zoom factor.
type Config struct {
	MinZoom      float64
	MaxZoom      float64
	WheelStep    float64
	PinchDivisor float64
}

// DefaultConfig returns the standard zoom bounds [0.5, 3.0], a 0.1 wheel step
// and a pinch divisor of 100.
func DefaultConfig() Config {
	return Config{
		MinZoom:      0.5,
		MaxZoom:      3.0,
		WheelStep:    0.1,
		PinchDivisor: 100,
	}
}

// Validate replaces unusable values with defaults.
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.MinZoom <= 0 || math.IsNaN(c.MinZoom) {
		c.MinZoom = def.MinZoom
	}
	if c.MaxZoom < c.MinZoom || math.IsNaN(c.MaxZoom) || math.IsInf(c.MaxZoom, 0) {
		c.MaxZoom = math.Max(def.MaxZoom, c.MinZoom)
	}
	if c.WheelStep <= 0 || math.IsNaN(c.WheelStep) {
		c.WheelStep = def.WheelStep
	}
	if c.PinchDivisor <= 0 || math.IsNaN(c.PinchDivisor) {
		c.PinchDivisor = def.PinchDivisor
	}
}

// Viewport is an immutable snapshot of pan and zoom.
type Viewport struct {
	Pan  types.Point `json:"pan"`
	Zoom float64     `json:"zoom"`
}

// Identity is the viewport a session starts with.
var Identity = Viewport{Zoom: 1}

// State is the mutable viewport of one viewing session. The zero value is
// not usable; construct with New or NewWithConfig.
type State struct {
	mu     sync.RWMutex
	config Config
	vp     Viewport
}

// New creates a State with default bounds at the identity viewport.
func New() *State {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a State with custom bounds at the identity viewport.
func NewWithConfig(config Config) *State {
	config.Validate()
	return &State{config: config, vp: Identity}
}

// Config returns the bounds in effect.
func (s *State) Config() Config { return s.config }

// Snapshot returns pan and zoom read together.
func (s *State) Snapshot() Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vp
}

// ApplyPan replaces the pan offset. Drag gestures report the absolute offset
// from the gesture origin, so no accumulation happens here.
func (s *State) ApplyPan(offset types.Point) Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vp.Pan = offset
	return s.vp
}

// ApplyWheelZoom steps the zoom by one WheelStep: out for a positive deltaY,
// in otherwise. The second result reports whether the bound clipped the step.
func (s *State) ApplyWheelZoom(deltaY float64) (Viewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.config.WheelStep
	if deltaY > 0 {
		step = -step
	}
	var clamped bool
	s.vp.Zoom, clamped = s.clampZoom(s.vp.Zoom + step)
	return s.vp, clamped
}

// ApplyPinchZoom sets the zoom to distance/PinchDivisor, clamped. Pinch is
// continuous and bypasses the wheel step.
func (s *State) ApplyPinchZoom(distance float64) (Viewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var clamped bool
	s.vp.Zoom, clamped = s.clampZoom(distance / s.config.PinchDivisor)
	return s.vp, clamped
}

// Reset returns to the identity viewport.
func (s *State) Reset() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vp = Identity
	return s.vp
}

func (s *State) clampZoom(z float64) (float64, bool) {
	if math.IsNaN(z) {
		// keep the current value; NaN can only come from a broken input
		return s.vp.Zoom, true
	}
	c := Clamp(z, s.config.MinZoom, s.config.MaxZoom)
	return c, c != z
}

// Clamp ensures a value is within the given bounds
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
