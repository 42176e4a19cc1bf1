package usecases

import (
	"context"
	"fmt"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/ports"
)

// SessionDispatcher fans marker changes out to live map sessions.
type SessionDispatcher interface {
	DispatchMarkerChanged(ctx context.Context, m *domain.Marker)
	DispatchMarkerRemoved(ctx context.Context, markerID string)
}

// MarkerProjector keeps the local read model and every live session in
// step with the marker events coming out of the reports service.
type MarkerProjector struct {
	subscriber ports.EventSubscriber
	markers    *MarkerService
	sessions   SessionDispatcher
}

// NewMarkerProjector creates a new MarkerProjector.
func NewMarkerProjector(subscriber ports.EventSubscriber, markers *MarkerService, sessions SessionDispatcher) *MarkerProjector {
	return &MarkerProjector{subscriber: subscriber, markers: markers, sessions: sessions}
}

// Start subscribes to marker events and returns. The handler runs on the
// subscriber's goroutines until ctx is canceled; a handler error leaves the
// event to the broker's redelivery.
func (p *MarkerProjector) Start(ctx context.Context) error {
	if err := p.subscriber.SubscribeMarkerEvents(ctx, p.handle); err != nil {
		return fmt.Errorf("subscribe marker events: %w", err)
	}
	return nil
}

func (p *MarkerProjector) handle(ctx context.Context, ev *domain.MarkerEvent) error {
	m, err := p.markers.Apply(ctx, ev)
	if err != nil {
		return err
	}
	if p.sessions == nil {
		return nil
	}
	switch {
	case ev.Kind == domain.MarkerDeleted:
		p.sessions.DispatchMarkerRemoved(ctx, ev.MarkerID)
	case m != nil:
		p.sessions.DispatchMarkerChanged(ctx, m)
	}
	return nil
}
