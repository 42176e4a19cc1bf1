package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/ports"
)

// ErrRenderInFlight is returned when a render is rejected because another
// one is still talking to the surface. The caller should drop the rejected
// render; a newer viewport event will follow and redraw anyway.
var ErrRenderInFlight = errors.New("render already in flight")

// Style identifiers owned by the marker renderer. Everything the renderer
// puts on the map carries one of these IDs, so teardown can find it again.
const (
	sourceReports = "reports"

	layerClusterGlow  = "report-cluster-glow"
	layerClusters     = "report-clusters"
	layerClusterCount = "report-cluster-count"
	layerPoints       = "report-points"

	imgPinReported  = "pin-reported"
	imgPinPending   = "pin-pending"
	imgPinRecovered = "pin-recovered"
)

// MarkerRenderer draws report markers onto a map surface as a clustered
// GeoJSON source plus four layers. Renders are serialized without queueing:
// while one render holds the surface, further Render calls fail fast with
// ErrRenderInFlight instead of piling up behind a slow client.
type MarkerRenderer struct {
	surface        ports.MapSurface
	clusterRadius  int
	clusterMaxZoom int

	mu          sync.Mutex
	inFlight    bool
	provisioned bool // pin images registered with the current style
}

// NewMarkerRenderer creates a new MarkerRenderer.
func NewMarkerRenderer(surface ports.MapSurface, clusterRadius, clusterMaxZoom int) *MarkerRenderer {
	return &MarkerRenderer{
		surface:        surface,
		clusterRadius:  clusterRadius,
		clusterMaxZoom: clusterMaxZoom,
	}
}

// Render replaces everything marker-related on the surface with the given
// set. An empty set tears down and leaves the map bare. The surface slot is
// released on every return path, success or not.
func (r *MarkerRenderer) Render(ctx context.Context, markers []domain.Marker) error {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return ErrRenderInFlight
	}
	r.inFlight = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.mu.Unlock()
	}()

	if err := r.teardown(ctx); err != nil {
		return err
	}
	if len(markers) == 0 {
		return nil
	}

	opts := ports.SourceOptions{
		Cluster:        true,
		ClusterRadius:  r.clusterRadius,
		ClusterMaxZoom: r.clusterMaxZoom,
	}
	if err := r.surface.AddGeoJSONSource(ctx, sourceReports, featureCollection(markers), opts); err != nil {
		return fmt.Errorf("add source: %w", err)
	}

	for _, spec := range clusterLayers() {
		if err := r.surface.AddLayer(ctx, spec); err != nil {
			return fmt.Errorf("add layer %s: %w", spec.ID, err)
		}
	}

	if err := r.ensureImages(ctx); err != nil {
		return err
	}

	if err := r.surface.AddLayer(ctx, pointLayer()); err != nil {
		return fmt.Errorf("add layer %s: %w", layerPoints, err)
	}
	return nil
}

// SetDimmed fades the marker layers while the map shows data the client
// knows is stale. Layers that are not on the surface yet are skipped.
func (r *MarkerRenderer) SetDimmed(ctx context.Context, dimmed bool) error {
	opacity := 1.0
	if dimmed {
		opacity = 0.4
	}
	if err := r.surface.SetLayerProperty(ctx, layerPoints, "icon-opacity", opacity); err != nil && !errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("dim %s: %w", layerPoints, err)
	}
	if err := r.surface.SetLayerProperty(ctx, layerClusters, "circle-opacity", opacity); err != nil && !errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("dim %s: %w", layerClusters, err)
	}
	return nil
}

// ResetImages forgets that pin images were provisioned. Call it after the
// client swaps its base style, which drops every registered image.
func (r *MarkerRenderer) ResetImages() {
	r.mu.Lock()
	r.provisioned = false
	r.mu.Unlock()
}

// Layers must be removed before their source or the style rejects the
// source removal. Missing pieces are fine; a fresh style has none of them.
func (r *MarkerRenderer) teardown(ctx context.Context) error {
	layers := []string{layerClusterGlow, layerClusters, layerClusterCount, layerPoints}
	for _, id := range layers {
		if err := r.surface.RemoveLayer(ctx, id); err != nil && !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("remove layer %s: %w", id, err)
		}
	}
	if err := r.surface.RemoveSource(ctx, sourceReports); err != nil && !errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("remove source %s: %w", sourceReports, err)
	}
	return nil
}

// Images survive across renders but not across style reloads, so they are
// registered at most once per style.
func (r *MarkerRenderer) ensureImages(ctx context.Context) error {
	r.mu.Lock()
	done := r.provisioned
	r.mu.Unlock()
	if done {
		return nil
	}

	for _, name := range []string{imgPinReported, imgPinPending, imgPinRecovered} {
		if err := r.surface.AddImage(ctx, name); err != nil {
			return fmt.Errorf("add image %s: %w", name, err)
		}
	}

	r.mu.Lock()
	r.provisioned = true
	r.mu.Unlock()
	return nil
}

func featureCollection(markers []domain.Marker) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(markers))}
	for i := range markers {
		m := &markers[i]
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       m.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{m.Location.Lon, m.Location.Lat}),
			Properties: map[string]any{
				"id":         m.ID,
				"status":     string(m.Status),
				"severity":   m.Severity,
				"is_pending": m.IsPending,
				"category":   m.Category,
			},
		})
	}
	return fc
}

func clusterLayers() []ports.LayerSpec {
	return []ports.LayerSpec{
		{
			ID:     layerClusterGlow,
			Type:   "circle",
			Source: sourceReports,
			Filter: []any{"has", "point_count"},
			Paint: map[string]any{
				"circle-color":   "#ff9800",
				"circle-opacity": 0.25,
				"circle-radius":  []any{"step", []any{"get", "point_count"}, 20, 10, 26, 50, 34},
			},
		},
		{
			ID:     layerClusters,
			Type:   "circle",
			Source: sourceReports,
			Filter: []any{"has", "point_count"},
			Paint: map[string]any{
				"circle-color":        []any{"step", []any{"get", "point_count"}, "#ffb74d", 10, "#ff9800", 50, "#f4511e"},
				"circle-radius":       []any{"step", []any{"get", "point_count"}, 14, 10, 19, 50, 26},
				"circle-stroke-width": 1.5,
				"circle-stroke-color": "#ffffff",
			},
		},
		{
			ID:     layerClusterCount,
			Type:   "symbol",
			Source: sourceReports,
			Filter: []any{"has", "point_count"},
			Layout: map[string]any{
				"text-field": []any{"get", "point_count_abbreviated"},
				"text-font":  []any{"DIN Offc Pro Medium", "Arial Unicode MS Bold"},
				"text-size":  12,
			},
			Paint: map[string]any{
				"text-color": "#ffffff",
			},
		},
	}
}

func pointLayer() ports.LayerSpec {
	return ports.LayerSpec{
		ID:     layerPoints,
		Type:   "symbol",
		Source: sourceReports,
		Filter: []any{"!", []any{"has", "point_count"}},
		Layout: map[string]any{
			"icon-image": []any{
				"case",
				[]any{"get", "is_pending"}, imgPinPending,
				[]any{"==", []any{"get", "status"}, string(domain.StatusRecovered)}, imgPinRecovered,
				imgPinReported,
			},
			"icon-size":          1.0,
			"icon-allow-overlap": true,
			// Higher severity draws above.
			"symbol-sort-key": []any{"get", "severity"},
		},
	}
}
