package http

import (
	"context"
	"sort"
	"sync"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
)

// SessionRegistry tracks live map sessions and fans marker changes out to
// them. It implements usecases.SessionDispatcher for the projector.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*MapSession
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*MapSession)}
}

func (r *SessionRegistry) add(s *MapSession) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

func (r *SessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns session info ordered by connection time.
func (r *SessionRegistry) Snapshot() []SessionInfo {
	r.mu.RLock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// DispatchMarkerChanged queues an upserted marker to every session whose
// fetched region contains it. The controller re-checks under its own lock;
// this filter just keeps irrelevant sessions' queues quiet.
func (r *SessionRegistry) DispatchMarkerChanged(ctx context.Context, m *domain.Marker) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if _, fetched, _ := s.controller.Snapshot(); fetched == nil || !fetched.Bounds.Contains(m.Location) {
			continue
		}
		s.queue(sessionEvent{kind: eventMarkerChanged, marker: m})
	}
}

// DispatchMarkerRemoved queues a deletion to every session with fetched
// data. Removals carry no location to filter on.
func (r *SessionRegistry) DispatchMarkerRemoved(ctx context.Context, markerID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if _, fetched, _ := s.controller.Snapshot(); fetched == nil {
			continue
		}
		s.queue(sessionEvent{kind: eventMarkerRemoved, markerID: markerID})
	}
}
