package ports

import (
	"context"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
)

// EventPublisher publishes map interaction events to a message broker.
type EventPublisher interface {
	PublishClusterExpansion(ctx context.Context, ev *domain.ClusterExpansion) error
	PublishMarkerOpen(ctx context.Context, ev *domain.MarkerOpen) error
}

// EventSubscriber consumes marker change events from the reports service.
type EventSubscriber interface {
	SubscribeMarkerEvents(ctx context.Context, handler func(ctx context.Context, ev *domain.MarkerEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
