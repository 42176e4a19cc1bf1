package usecases_test

import (
	"context"
	"sync"
	"testing"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/usecases"
)

// --- Mock subscriber and dispatcher ---

type mockSubscriber struct {
	handler func(ctx context.Context, ev *domain.MarkerEvent) error
}

func (m *mockSubscriber) SubscribeMarkerEvents(ctx context.Context, handler func(ctx context.Context, ev *domain.MarkerEvent) error) error {
	m.handler = handler
	return nil
}

type mockDispatcher struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (m *mockDispatcher) DispatchMarkerChanged(ctx context.Context, mk *domain.Marker) {
	m.mu.Lock()
	m.changed = append(m.changed, mk.ID)
	m.mu.Unlock()
}

func (m *mockDispatcher) DispatchMarkerRemoved(ctx context.Context, markerID string) {
	m.mu.Lock()
	m.removed = append(m.removed, markerID)
	m.mu.Unlock()
}

// --- Tests ---

func TestProjector_AppliesAndDispatchesChange(t *testing.T) {
	repo := &mockMarkerRepo{}
	sub := &mockSubscriber{}
	disp := &mockDispatcher{}
	proj := usecases.NewMarkerProjector(sub, usecases.NewMarkerService(repo, nil), disp)

	if err := proj.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sub.handler == nil {
		t.Fatal("projector did not subscribe")
	}

	ev := &domain.MarkerEvent{
		Kind:   domain.MarkerUpdated,
		Marker: &domain.Marker{ID: "m1", Location: domain.GeoPoint{Lat: 43.263, Lon: -2.935}},
	}
	if err := sub.handler(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(repo.upserts) != 1 {
		t.Errorf("expected the marker upserted, got %d", len(repo.upserts))
	}
	if len(disp.changed) != 1 || disp.changed[0] != "m1" {
		t.Errorf("expected m1 dispatched, got %v", disp.changed)
	}
}

func TestProjector_DispatchesRemoval(t *testing.T) {
	repo := &mockMarkerRepo{}
	sub := &mockSubscriber{}
	disp := &mockDispatcher{}
	proj := usecases.NewMarkerProjector(sub, usecases.NewMarkerService(repo, nil), disp)

	if err := proj.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ev := &domain.MarkerEvent{Kind: domain.MarkerDeleted, MarkerID: "m2"}
	if err := sub.handler(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(repo.deletes) != 1 || repo.deletes[0] != "m2" {
		t.Errorf("expected m2 deleted, got %v", repo.deletes)
	}
	if len(disp.removed) != 1 || disp.removed[0] != "m2" {
		t.Errorf("expected m2 dispatched as removed, got %v", disp.removed)
	}
}

func TestProjector_MalformedEventNotDispatched(t *testing.T) {
	sub := &mockSubscriber{}
	disp := &mockDispatcher{}
	proj := usecases.NewMarkerProjector(sub, usecases.NewMarkerService(&mockMarkerRepo{}, nil), disp)

	if err := proj.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := sub.handler(context.Background(), &domain.MarkerEvent{Kind: "exploded"}); err == nil {
		t.Error("expected a malformed event to error for redelivery")
	}
	if len(disp.changed) != 0 || len(disp.removed) != 0 {
		t.Error("malformed events must not reach sessions")
	}
}

func TestProjector_NilDispatcher(t *testing.T) {
	sub := &mockSubscriber{}
	proj := usecases.NewMarkerProjector(sub, usecases.NewMarkerService(&mockMarkerRepo{}, nil), nil)

	if err := proj.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ev := &domain.MarkerEvent{
		Kind:   domain.MarkerCreated,
		Marker: &domain.Marker{ID: "m3", Location: domain.GeoPoint{Lat: 43.0, Lon: -2.9}},
	}
	if err := sub.handler(context.Background(), ev); err != nil {
		t.Fatalf("a projector without sessions must still apply events: %v", err)
	}
}
