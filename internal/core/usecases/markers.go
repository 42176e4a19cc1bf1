package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/ports"
	"github.com/samirrijal/bilbowatch/internal/pkg/geospatial"
)

// MarkerService is the read model for hazard markers, backing both the map
// sessions and the HTTP API.
type MarkerService struct {
	markers ports.MarkerRepository
	cache   ports.CacheService
	flight  singleflight.Group
}

// NewMarkerService creates a new MarkerService.
func NewMarkerService(markers ports.MarkerRepository, cache ports.CacheService) *MarkerService {
	return &MarkerService{markers: markers, cache: cache}
}

// FindInBounds returns markers inside b, highest severity first. Identical
// concurrent lookups collapse into one repository query, which matters when
// many sessions watch the same part of the city.
func (s *MarkerService) FindInBounds(ctx context.Context, b domain.Bounds, status domain.MarkerStatus, limit int) ([]domain.Marker, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid bounds")
	}
	if status != "" && !validStatus(status) {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	cacheKey := fmt.Sprintf("markers:bbox:%.3f:%.3f:%.3f:%.3f:%s:%d",
		b.MinLat, b.MinLon, b.MaxLat, b.MaxLon, status, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var markers []domain.Marker
			if err := json.Unmarshal(data, &markers); err == nil {
				return markers, nil
			}
		}
	}

	v, err, _ := s.flight.Do(cacheKey, func() (any, error) {
		markers, err := s.markers.FindInBounds(ctx, b, status, limit)
		if err != nil {
			return nil, err
		}
		// Markers change often, so bbox entries live only a few seconds.
		if s.cache != nil {
			if data, err := json.Marshal(markers); err == nil {
				_ = s.cache.Set(ctx, cacheKey, data, 15)
			}
		}
		return markers, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Marker), nil
}

// FindNearby returns markers within radiusMeters of a point, closest first.
func (s *MarkerService) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Marker, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if radiusMeters <= 0 || radiusMeters > 10000 {
		radiusMeters = 1000
	}

	cacheKey := fmt.Sprintf("markers:nearby:%.4f:%.4f:%.0f:%d", lat, lon, radiusMeters, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var markers []domain.Marker
			if err := json.Unmarshal(data, &markers); err == nil {
				// The cache key rounds the query point, so recompute the
				// distances for the exact point asked about.
				for i := range markers {
					d := geospatial.Haversine(lat, lon, markers[i].Location.Lat, markers[i].Location.Lon)
					markers[i].Distance = &d
				}
				return markers, nil
			}
		}
	}

	markers, err := s.markers.FindNearby(ctx, lat, lon, radiusMeters, limit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if data, err := json.Marshal(markers); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 60)
		}
	}
	return markers, nil
}

// GetByID returns a single marker.
func (s *MarkerService) GetByID(ctx context.Context, id string) (*domain.Marker, error) {
	cacheKey := "markers:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var m domain.Marker
			if err := json.Unmarshal(data, &m); err == nil {
				return &m, nil
			}
		}
	}

	m, err := s.markers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(m); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600)
		}
	}
	return m, nil
}

// Stats returns marker counts grouped by status.
func (s *MarkerService) Stats(ctx context.Context) (map[domain.MarkerStatus]int, error) {
	const cacheKey = "markers:stats"
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var counts map[domain.MarkerStatus]int
			if err := json.Unmarshal(data, &counts); err == nil {
				return counts, nil
			}
		}
	}

	counts, err := s.markers.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(counts); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 30)
		}
	}
	return counts, nil
}

// Apply folds a marker event into the read model and drops the cache
// entries it staled. Bounding-box entries expire on their own short TTL.
// The returned marker is nil for deletions.
func (s *MarkerService) Apply(ctx context.Context, ev *domain.MarkerEvent) (*domain.Marker, error) {
	switch ev.Kind {
	case domain.MarkerCreated, domain.MarkerUpdated:
		if ev.Marker == nil {
			return nil, fmt.Errorf("%s event without a marker", ev.Kind)
		}
		if err := s.markers.Upsert(ctx, ev.Marker); err != nil {
			return nil, fmt.Errorf("upsert marker: %w", err)
		}
		s.invalidate(ctx, ev.Marker.ID)
		return ev.Marker, nil

	case domain.MarkerDeleted:
		if ev.MarkerID == "" {
			return nil, fmt.Errorf("delete event without a marker id")
		}
		if err := s.markers.Delete(ctx, ev.MarkerID); err != nil {
			return nil, fmt.Errorf("delete marker: %w", err)
		}
		s.invalidate(ctx, ev.MarkerID)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown marker event kind %q", ev.Kind)
	}
}

func (s *MarkerService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, "markers:id:"+id)
	_ = s.cache.Delete(ctx, "markers:stats")
}

func validStatus(st domain.MarkerStatus) bool {
	switch st {
	case domain.StatusReported, domain.StatusAcknowledged, domain.StatusRecovered:
		return true
	}
	return false
}
