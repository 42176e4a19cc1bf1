package ports

import (
	"context"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
)

// MarkerRepository persists the hazard-marker read model.
type MarkerRepository interface {
	Upsert(ctx context.Context, m *domain.Marker) error
	UpsertBatch(ctx context.Context, markers []domain.Marker) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Marker, error)
	// FindInBounds returns markers inside the box, highest severity first.
	// An empty status matches all statuses.
	FindInBounds(ctx context.Context, b domain.Bounds, status domain.MarkerStatus, limit int) ([]domain.Marker, error)
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Marker, error)
	CountByStatus(ctx context.Context) (map[domain.MarkerStatus]int, error)
}
