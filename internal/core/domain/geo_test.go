package domain_test

import (
	"math"
	"testing"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuffered_ExpandsSymmetrically(t *testing.T) {
	b := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}
	got := b.Buffered(0.3)

	want := domain.Bounds{MinLat: -3, MinLon: -3, MaxLat: 13, MaxLon: 13}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if !got.Contains(domain.GeoPoint{Lat: 0, Lon: 0}) {
		t.Error("buffered box should contain the original corner")
	}
}

func TestBuffered_DegeneratePoint(t *testing.T) {
	b := domain.Bounds{MinLat: 43.263, MinLon: -2.935, MaxLat: 43.263, MaxLon: -2.935}
	got := b.Buffered(0.3)

	if !got.Valid() {
		t.Fatal("buffered degenerate box must stay valid")
	}
	if got != b {
		t.Errorf("zero-span box should not grow, got %+v", got)
	}
	if !got.Contains(domain.GeoPoint{Lat: 43.263, Lon: -2.935}) {
		t.Error("buffered box should still contain the point")
	}
	if got.Area() != 0 {
		t.Errorf("expected zero area, got %f", got.Area())
	}
}

func TestBuffered_ZeroFraction(t *testing.T) {
	b := domain.Bounds{MinLat: 1, MinLon: 2, MaxLat: 3, MaxLon: 4}
	if got := b.Buffered(0); got != b {
		t.Errorf("zero fraction should be identity, got %+v", got)
	}
}

func TestIntersect_Overlap(t *testing.T) {
	a := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}
	b := domain.Bounds{MinLat: 5, MinLon: 5, MaxLat: 15, MaxLon: 15}

	got, ok := a.Intersect(b)
	if !ok {
		t.Fatal("expected an intersection")
	}
	want := domain.Bounds{MinLat: 5, MinLon: 5, MaxLat: 10, MaxLon: 10}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if !almostEqual(got.Area(), 25) {
		t.Errorf("expected area 25, got %f", got.Area())
	}
}

func TestIntersect_Disjoint(t *testing.T) {
	a := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}
	b := domain.Bounds{MinLat: 5, MinLon: 5, MaxLat: 6, MaxLon: 6}

	if _, ok := a.Intersect(b); ok {
		t.Error("expected no intersection for disjoint boxes")
	}
}

func TestIntersect_TouchingEdge(t *testing.T) {
	a := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}
	b := domain.Bounds{MinLat: 0, MinLon: 1, MaxLat: 1, MaxLon: 2}

	got, ok := a.Intersect(b)
	if !ok {
		t.Fatal("touching boxes share an edge")
	}
	if got.Area() != 0 {
		t.Errorf("expected zero-area edge, got %f", got.Area())
	}
}

func TestContains_Edges(t *testing.T) {
	b := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}

	if !b.Contains(domain.GeoPoint{Lat: 0, Lon: 0}) {
		t.Error("min corner should be inside")
	}
	if !b.Contains(domain.GeoPoint{Lat: 1, Lon: 1}) {
		t.Error("max corner should be inside")
	}
	if b.Contains(domain.GeoPoint{Lat: 1.0001, Lon: 0.5}) {
		t.Error("point above max lat should be outside")
	}
}

func TestZoomBucket_Truncates(t *testing.T) {
	cases := []struct {
		zoom float64
		want int
	}{
		{14.0, 14},
		{14.9, 14},
		{15.0, 15},
		{0.4, 0},
	}
	for _, c := range cases {
		v := domain.Viewport{Zoom: c.zoom}
		if got := v.ZoomBucket(); got != c.want {
			t.Errorf("zoom %.1f: expected bucket %d, got %d", c.zoom, c.want, got)
		}
	}
}
