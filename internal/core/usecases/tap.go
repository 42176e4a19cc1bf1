package usecases

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/ports"
)

// TapOutcome names what a screen tap resolved to.
type TapOutcome int

const (
	TapNone TapOutcome = iota
	TapCluster
	TapMarker
)

func (o TapOutcome) String() string {
	switch o {
	case TapCluster:
		return "cluster"
	case TapMarker:
		return "marker"
	default:
		return "none"
	}
}

// The glow ring extends past the core circle, so it takes part in the
// cluster hit test too.
var clusterHitLayers = []string{layerClusters, layerClusterGlow}

// HandleTap resolves a tap against the rendered marker layers. Cluster hits
// win over point hits and fly the camera two zoom levels in toward the
// cluster anchor; point hits notify the client to open the marker detail.
func (c *ViewportController) HandleTap(ctx context.Context, pt domain.ScreenPoint) (TapOutcome, error) {
	hits, err := c.surface.QueryRenderedFeatures(ctx, pt, clusterHitLayers)
	if err != nil {
		return TapNone, fmt.Errorf("query clusters: %w", err)
	}
	if len(hits) > 0 {
		return TapCluster, c.expandCluster(ctx, hits[0])
	}

	hits, err = c.surface.QueryRenderedFeatures(ctx, pt, []string{layerPoints})
	if err != nil {
		return TapNone, fmt.Errorf("query points: %w", err)
	}
	if len(hits) == 0 {
		return TapNone, nil
	}

	markerID, _ := hits[0].Properties["id"].(string)
	if markerID == "" {
		return TapNone, nil
	}
	if c.publisher != nil {
		_ = c.publisher.PublishMarkerOpen(ctx, &domain.MarkerOpen{
			SessionID: c.sessionID,
			MarkerID:  markerID,
			At:        time.Now(),
		})
	}
	return TapMarker, c.notifier.NotifyOpenMarker(ctx, markerID)
}

func (c *ViewportController) expandCluster(ctx context.Context, hit ports.QueryHit) error {
	cam, err := c.surface.Camera(ctx)
	if err != nil {
		return fmt.Errorf("read camera: %w", err)
	}

	target := math.Min(cam.Zoom+c.cfg.TapZoomStep, c.cfg.MaxZoom)
	to := domain.Camera{Center: hit.Point, Zoom: target}
	if err := c.surface.FlyTo(ctx, to, c.cfg.FlyToDuration); err != nil {
		return fmt.Errorf("fly to cluster: %w", err)
	}

	if c.publisher != nil {
		_ = c.publisher.PublishClusterExpansion(ctx, &domain.ClusterExpansion{
			SessionID:  c.sessionID,
			Center:     hit.Point,
			PointCount: propInt(hit.Properties, "point_count"),
			FromZoom:   cam.Zoom,
			ToZoom:     target,
			At:         time.Now(),
		})
	}
	return nil
}

// Query results cross a JSON boundary, so numbers may arrive as float64.
func propInt(props map[string]any, key string) int {
	switch n := props[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
