package types

import "math"

// Point is a 2D coordinate. Which frame it lives in depends on the caller.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Mul scales both axes by k.
func (p Point) Mul(k float64) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Size is a width/height pair in pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// UnknownSize is reported for an image whose natural dimensions have not
// arrived yet. Known reports false for it, so every division site treats it
// as inactive.
var UnknownSize = Size{}

// Known reports whether both dimensions are strictly positive and finite.
func (s Size) Known() bool {
	return s.Width > 0 && s.Height > 0 && !math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Scale holds per-axis scale factors.
type Scale struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both factors can be used as divisors.
func (s Scale) Valid() bool {
	return s.X > 0 && s.Y > 0 && !math.IsInf(s.X, 0) && !math.IsInf(s.Y, 0)
}

// Rect is an axis-aligned rectangle given by its top-left corner and size.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Min returns the top-left corner.
func (r Rect) Min() Point { return Point{X: r.X, Y: r.Y} }

// Max returns the bottom-right corner.
func (r Rect) Max() Point { return Point{X: r.X + r.Width, Y: r.Y + r.Height} }

// Center returns the rectangle center.
func (r Rect) Center() Point { return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2} }

// DetectionBox is a detection result as corner coordinates in native image pixels.
type DetectionBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Finite reports whether all four coordinates are finite numbers.
func (b DetectionBox) Finite() bool {
	for _, v := range [4]float64{b.X0, b.Y0, b.X1, b.Y1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Ordered reports whether x0<x1 and y0<y1.
func (b DetectionBox) Ordered() bool { return b.X0 < b.X1 && b.Y0 < b.Y1 }

// Normalize returns the box with corners swapped so that x0<=x1 and y0<=y1.
func (b DetectionBox) Normalize() DetectionBox {
	if b.X0 > b.X1 {
		b.X0, b.X1 = b.X1, b.X0
	}
	if b.Y0 > b.Y1 {
		b.Y0, b.Y1 = b.Y1, b.Y0
	}
	return b
}

// CellCount is one row of a patient analysis table.
type CellCount struct {
	Type       string `json:"type"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

// Platelets summarises the platelet count.
type Platelets struct {
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

// PatientReport holds the tabular cell counts shown next to the slide.
type PatientReport struct {
	RBC       []CellCount `json:"rbc"`
	WBC       []CellCount `json:"wbc"`
	Platelets Platelets   `json:"platelets"`
}
