package ports

import (
	"context"
	"errors"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
)

// ErrNotFound reports that a source, layer, or image is absent from the
// surface. Teardown paths treat it as benign.
var ErrNotFound = errors.New("surface: not found")

// SourceOptions configures a GeoJSON source.
type SourceOptions struct {
	Cluster        bool `json:"cluster"`
	ClusterRadius  int  `json:"cluster_radius,omitempty"` // pixels
	ClusterMaxZoom int  `json:"cluster_max_zoom,omitempty"`
}

// LayerSpec describes a style layer. Filter, Layout, and Paint hold
// Mapbox-style expression JSON.
type LayerSpec struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"` // "circle" | "symbol"
	Source string         `json:"source"`
	Filter []any          `json:"filter,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// QueryHit is a rendered feature returned by a hit test.
type QueryHit struct {
	LayerID    string          `json:"layer_id"`
	Point      domain.GeoPoint `json:"point"`
	Properties map[string]any  `json:"properties"`
}

// MapSurface is the client's GL map, reachable only through asynchronous
// commands. Every operation is a round trip and may fail; implementations
// must be safe for concurrent use.
type MapSurface interface {
	AddGeoJSONSource(ctx context.Context, id string, fc *geojson.FeatureCollection, opts SourceOptions) error
	RemoveSource(ctx context.Context, id string) error
	AddLayer(ctx context.Context, spec LayerSpec) error
	RemoveLayer(ctx context.Context, id string) error
	SetLayerProperty(ctx context.Context, layerID, name string, value any) error
	// AddImage registers a client-bundled asset by name into the current style.
	AddImage(ctx context.Context, name string) error
	QueryRenderedFeatures(ctx context.Context, pt domain.ScreenPoint, layerIDs []string) ([]QueryHit, error)
	Camera(ctx context.Context) (domain.Camera, error)
	FlyTo(ctx context.Context, to domain.Camera, duration time.Duration) error
}
