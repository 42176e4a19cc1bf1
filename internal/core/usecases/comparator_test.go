package usecases_test

import (
	"testing"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/usecases"
)

func newComparator() usecases.BoundsComparator {
	return usecases.NewBoundsComparator(0.001, 0.8)
}

func TestUnchanged_NilLast(t *testing.T) {
	cmp := newComparator()
	candidate := domain.Viewport{
		Bounds: domain.Bounds{MinLat: 43.25, MinLon: -2.95, MaxLat: 43.28, MaxLon: -2.91},
		Zoom:   14,
	}
	if cmp.Unchanged(candidate, nil) {
		t.Error("first viewport must never compare as unchanged")
	}
}

func TestUnchanged_JitterWithinThreshold(t *testing.T) {
	cmp := newComparator()
	last := domain.Viewport{
		Bounds: domain.Bounds{MinLat: 43.25, MinLon: -2.95, MaxLat: 43.28, MaxLon: -2.91},
		Zoom:   14.2,
	}
	candidate := last
	candidate.Bounds.MinLat += 0.0004
	candidate.Bounds.MaxLon -= 0.0009
	candidate.Zoom = 14.7

	if !cmp.Unchanged(candidate, &last) {
		t.Error("sub-threshold edge jitter at the same zoom bucket should be unchanged")
	}
}

func TestUnchanged_EdgeAtThreshold(t *testing.T) {
	cmp := newComparator()
	last := domain.Viewport{
		Bounds: domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10},
		Zoom:   14,
	}
	candidate := last
	candidate.Bounds.MinLat = 0.001

	// The threshold comparison is strict, so exactly 0.001 counts as moved.
	if cmp.Unchanged(candidate, &last) {
		t.Error("an edge moved by exactly the threshold should count as changed")
	}
}

func TestUnchanged_ZoomBucketDiffers(t *testing.T) {
	cmp := newComparator()
	last := domain.Viewport{
		Bounds: domain.Bounds{MinLat: 43.25, MinLon: -2.95, MaxLat: 43.28, MaxLon: -2.91},
		Zoom:   14.9,
	}
	candidate := last
	candidate.Zoom = 15.0

	if cmp.Unchanged(candidate, &last) {
		t.Error("crossing an integer zoom level re-clusters, so it must count as changed")
	}
}

func TestUnchanged_SingleEdgeMoved(t *testing.T) {
	cmp := newComparator()
	last := domain.Viewport{
		Bounds: domain.Bounds{MinLat: 43.25, MinLon: -2.95, MaxLat: 43.28, MaxLon: -2.91},
		Zoom:   14,
	}
	candidate := last
	candidate.Bounds.MinLon -= 0.05

	if cmp.Unchanged(candidate, &last) {
		t.Error("one edge past the threshold should count as changed")
	}
}

func TestOutsideFetched_QuarterOverlap(t *testing.T) {
	cmp := newComparator()
	visible := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}
	fetched := domain.Bounds{MinLat: 5, MinLon: 5, MaxLat: 15, MaxLon: 15}

	// Intersection is 5x5 = 25 against a visible area of 100, ratio 0.25.
	if !cmp.OutsideFetched(visible, fetched) {
		t.Error("a 0.25 overlap ratio is below 0.8 and needs a refetch")
	}
}

func TestOutsideFetched_FullyCovered(t *testing.T) {
	cmp := newComparator()
	visible := domain.Bounds{MinLat: 2, MinLon: 2, MaxLat: 8, MaxLon: 8}
	fetched := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}

	if cmp.OutsideFetched(visible, fetched) {
		t.Error("a fully covered viewport must not refetch")
	}
}

func TestOutsideFetched_Disjoint(t *testing.T) {
	cmp := newComparator()
	visible := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}
	fetched := domain.Bounds{MinLat: 5, MinLon: 5, MaxLat: 6, MaxLon: 6}

	if !cmp.OutsideFetched(visible, fetched) {
		t.Error("disjoint bounds must refetch")
	}
}

func TestOutsideFetched_RatioJustBelowThreshold(t *testing.T) {
	cmp := newComparator()
	visible := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}
	// Slide the fetched box so the intersection is 10x7.9 = 79, ratio 0.79.
	fetched := domain.Bounds{MinLat: 2.1, MinLon: 0, MaxLat: 12.1, MaxLon: 10}

	if !cmp.OutsideFetched(visible, fetched) {
		t.Error("ratio 0.79 is below the 0.8 floor and needs a refetch")
	}
}

func TestOutsideFetched_RatioAtThreshold(t *testing.T) {
	cmp := newComparator()
	visible := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}
	// Intersection 10x8 = 80, ratio exactly 0.8.
	fetched := domain.Bounds{MinLat: 2, MinLon: 0, MaxLat: 12, MaxLon: 10}

	if cmp.OutsideFetched(visible, fetched) {
		t.Error("ratio exactly at the floor still counts as covered")
	}
}

func TestOutsideFetched_DegenerateVisible(t *testing.T) {
	cmp := newComparator()
	visible := domain.Bounds{MinLat: 43.263, MinLon: -2.935, MaxLat: 43.263, MaxLon: -2.935}
	fetched := domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}

	if cmp.OutsideFetched(visible, fetched) {
		t.Error("a zero-area viewport must never trigger a refetch")
	}
}
