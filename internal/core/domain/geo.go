package domain

import "math"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Valid reports whether the box is well-formed (min edges not above max edges).
func (b Bounds) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// Width returns the longitude span in degrees.
func (b Bounds) Width() float64 { return b.MaxLon - b.MinLon }

// Height returns the latitude span in degrees.
func (b Bounds) Height() float64 { return b.MaxLat - b.MinLat }

// Area returns the box area in square degrees.
func (b Bounds) Area() float64 { return b.Width() * b.Height() }

// Center returns the midpoint of the box.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Contains reports whether the point lies inside the box, edges inclusive.
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Buffered returns the box expanded symmetrically by frac of each axis span.
// A degenerate span grows by nothing; the result is always a valid box.
func (b Bounds) Buffered(frac float64) Bounds {
	dLat := b.Height() * frac
	dLon := b.Width() * frac
	return Bounds{
		MinLat: b.MinLat - dLat,
		MinLon: b.MinLon - dLon,
		MaxLat: b.MaxLat + dLat,
		MaxLon: b.MaxLon + dLon,
	}
}

// Intersect returns the overlapping region of two boxes and whether one exists.
func (b Bounds) Intersect(o Bounds) (Bounds, bool) {
	r := Bounds{
		MinLat: math.Max(b.MinLat, o.MinLat),
		MinLon: math.Max(b.MinLon, o.MinLon),
		MaxLat: math.Min(b.MaxLat, o.MaxLat),
		MaxLon: math.Min(b.MaxLon, o.MaxLon),
	}
	if !r.Valid() {
		return Bounds{}, false
	}
	return r, true
}

// Viewport is a camera-visible region together with its zoom level.
type Viewport struct {
	Bounds Bounds  `json:"bounds"`
	Zoom   float64 `json:"zoom"`
}

// ZoomBucket returns the integer zoom level, discarding fractional detail.
// Sub-integer zoom changes do not re-cluster visibly, so they compare equal.
func (v Viewport) ZoomBucket() int { return int(v.Zoom) }

// Buffered returns the viewport with its bounds expanded by frac, same zoom.
func (v Viewport) Buffered(frac float64) Viewport {
	return Viewport{Bounds: v.Bounds.Buffered(frac), Zoom: v.Zoom}
}

// Camera is a map camera position.
type Camera struct {
	Center GeoPoint `json:"center"`
	Zoom   float64  `json:"zoom"`
}

// ScreenPoint is a tap location in device pixels.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
