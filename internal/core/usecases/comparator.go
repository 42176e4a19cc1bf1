package usecases

import (
	"math"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
)

// BoundsComparator decides whether a camera move is worth reacting to.
// Thresholds come from viewport config; see config.ViewportConfig.
type BoundsComparator struct {
	// UnchangedThreshold is the per-edge jitter tolerance in degrees.
	UnchangedThreshold float64
	// MinOverlapRatio is the fraction of the visible area that must still
	// be covered by previously fetched bounds to avoid a refetch.
	MinOverlapRatio float64
}

// NewBoundsComparator creates a new BoundsComparator.
func NewBoundsComparator(unchangedThreshold, minOverlapRatio float64) BoundsComparator {
	return BoundsComparator{
		UnchangedThreshold: unchangedThreshold,
		MinOverlapRatio:    minOverlapRatio,
	}
}

// Unchanged reports whether candidate is indistinguishable from the last
// processed viewport: every edge moved less than the jitter threshold and
// the integer zoom level is the same. A nil last viewport is never equal,
// so the first camera event always proceeds.
func (c BoundsComparator) Unchanged(candidate domain.Viewport, last *domain.Viewport) bool {
	if last == nil {
		return false
	}
	if candidate.ZoomBucket() != last.ZoomBucket() {
		return false
	}
	t := c.UnchangedThreshold
	return math.Abs(candidate.Bounds.MinLat-last.Bounds.MinLat) < t &&
		math.Abs(candidate.Bounds.MinLon-last.Bounds.MinLon) < t &&
		math.Abs(candidate.Bounds.MaxLat-last.Bounds.MaxLat) < t &&
		math.Abs(candidate.Bounds.MaxLon-last.Bounds.MaxLon) < t
}

// OutsideFetched reports whether the visible box has drifted far enough out
// of the fetched box that a refetch is needed. The overlap ratio is the
// intersection area divided by the visible area. Disjoint boxes always need
// a refetch; a degenerate visible box never does.
func (c BoundsComparator) OutsideFetched(visible, fetched domain.Bounds) bool {
	visibleArea := visible.Area()
	if visibleArea <= 0 {
		return false
	}
	overlap, ok := visible.Intersect(fetched)
	if !ok {
		return true
	}
	return overlap.Area()/visibleArea < c.MinOverlapRatio
}
