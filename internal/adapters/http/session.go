package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/samirrijal/bilbowatch/internal/adapters/surface"
	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/usecases"
	"github.com/samirrijal/bilbowatch/internal/pkg/metrics"
)

// Client frame types read off a session socket.
const (
	frameHello       = "hello"
	frameCamera      = "camera"
	frameTap         = "tap"
	frameRefresh     = "refresh"
	frameStyleLoaded = "style_loaded"
	frameAck         = "ack"
	frameResult      = "result"
)

// clientFrame is a message from the map client. ack/result frames answer a
// numbered surface command; the rest are gesture and lifecycle events.
type clientFrame struct {
	Type     string              `json:"type"`
	Seq      int64               `json:"seq,omitempty"`
	Error    string              `json:"error,omitempty"`
	Code     string              `json:"code,omitempty"`
	Payload  json.RawMessage     `json:"payload,omitempty"`
	Viewport *domain.Viewport    `json:"viewport,omitempty"`
	Point    *domain.ScreenPoint `json:"point,omitempty"`
}

// sessionEvent is a unit of work for the session worker: either a client
// frame or a marker change fanned out by the projector.
type sessionEvent struct {
	kind     string
	frame    clientFrame
	marker   *domain.Marker
	markerID string
}

const (
	eventMarkerChanged = "marker_changed"
	eventMarkerRemoved = "marker_removed"
)

// MapSession is one connected map client. The read loop resolves command
// replies inline and queues everything else to a single worker goroutine,
// so a slow surface round trip never stalls frame reads. Camera frames
// pass through a latest-value channel: when the worker is busy, newer
// camera positions replace queued ones instead of piling up.
type MapSession struct {
	ID          string
	ConnectedAt time.Time

	conn       *websocket.Conn
	remote     *surface.Remote
	controller *usecases.ViewportController

	camera chan domain.Viewport
	events chan sessionEvent
	done   chan struct{}

	closeOnce sync.Once
}

// SessionInfo is the ops-facing snapshot of a session.
type SessionInfo struct {
	ID          string           `json:"id"`
	ConnectedAt time.Time        `json:"connected_at"`
	Stale       bool             `json:"stale"`
	Visible     *domain.Viewport `json:"visible,omitempty"`
	Fetched     *domain.Viewport `json:"fetched,omitempty"`
}

// MapSessionHandler upgrades /ws/map connections into map sessions.
func MapSessionHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		s := newMapSession(c, deps)

		deps.Sessions.add(s)
		metrics.SessionsActive.Inc()
		defer func() {
			deps.Sessions.remove(s.ID)
			metrics.SessionsActive.Dec()
			s.close()
		}()

		s.run()
	}
}

func newMapSession(c *websocket.Conn, deps *Dependencies) *MapSession {
	cfg := deps.Cfg

	s := &MapSession{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		conn:        c,
		camera:      make(chan domain.Viewport, 1),
		events:      make(chan sessionEvent, cfg.Session.EventBuffer),
		done:        make(chan struct{}),
	}
	s.remote = surface.NewRemote(c, time.Duration(cfg.Session.OpTimeoutMS)*time.Millisecond)

	renderer := usecases.NewMarkerRenderer(s.remote, cfg.Cluster.RadiusPx, cfg.Cluster.MaxZoom)
	s.controller = usecases.NewViewportController(
		s.ID, deps.Markers, renderer, s.remote, deps.Publisher, s,
		usecases.ControllerConfig{
			BufferFraction:     cfg.Viewport.BufferFraction,
			UnchangedThreshold: cfg.Viewport.UnchangedThreshold,
			MinOverlapRatio:    cfg.Viewport.MinOverlapRatio,
			AutoRefresh:        cfg.Viewport.AutoRefresh,
			MarkerLimit:        cfg.Viewport.MarkerLimit,
			TapZoomStep:        cfg.Session.TapZoomStep,
			MaxZoom:            cfg.Session.MaxZoom,
			FlyToDuration:      time.Duration(cfg.Session.FlyToMS) * time.Millisecond,
			RefreshMinInterval: time.Duration(cfg.Viewport.RefreshMinMS) * time.Millisecond,
		},
	)
	return s
}

func (s *MapSession) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("map session connected",
		"session_id", s.ID, "remote_addr", s.conn.RemoteAddr().String())

	go s.worker(ctx)
	go s.keepAlive()

	_ = s.remote.Notice("session_ready", map[string]string{"session_id": s.ID})

	s.readLoop()
	close(s.done)

	slog.Info("map session disconnected", "session_id", s.ID)
}

// readLoop consumes client frames until the socket dies.
func (s *MapSession) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			_ = s.remote.Notice("error", map[string]string{"message": "invalid frame"})
			continue
		}

		switch f.Type {
		case frameAck, frameResult:
			s.remote.Resolve(f.Seq, f.Error, f.Code, f.Payload)

		case frameCamera:
			if f.Viewport == nil {
				_ = s.remote.Notice("error", map[string]string{"message": "camera frame without viewport"})
				continue
			}
			s.offerCamera(*f.Viewport)

		case frameHello, frameTap, frameRefresh, frameStyleLoaded:
			s.queue(sessionEvent{kind: f.Type, frame: f})

		default:
			_ = s.remote.Notice("error", map[string]string{"message": "unknown frame type: " + f.Type})
		}
	}
}

// offerCamera replaces any camera position still waiting for the worker.
// Only the newest settled viewport matters.
func (s *MapSession) offerCamera(v domain.Viewport) {
	for {
		select {
		case s.camera <- v:
			return
		default:
			select {
			case <-s.camera:
			default:
			}
		}
	}
}

// queue hands an event to the worker, dropping it when the session is
// backed up past its buffer.
func (s *MapSession) queue(ev sessionEvent) {
	select {
	case s.events <- ev:
	default:
		slog.Warn("session event queue full, dropping",
			"session_id", s.ID, "kind", ev.kind)
	}
}

func (s *MapSession) worker(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case v := <-s.camera:
			s.handleCamera(ctx, v)
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *MapSession) handleCamera(ctx context.Context, v domain.Viewport) {
	start := time.Now()
	outcome, err := s.controller.HandleCameraIdle(ctx, v)
	metrics.CameraEvents.WithLabelValues(outcome.String()).Inc()

	if outcome == usecases.CameraFetched {
		metrics.RenderDuration.Observe(time.Since(start).Seconds())
		result := "ok"
		switch {
		case errors.Is(err, usecases.ErrRenderInFlight):
			result = "busy"
		case err != nil:
			result = "error"
		}
		metrics.RendersTotal.WithLabelValues(result).Inc()
	}

	if err != nil && !errors.Is(err, usecases.ErrRenderInFlight) {
		slog.Error("camera pipeline failed",
			"session_id", s.ID, "outcome", outcome.String(), "error", err)
	}
}

func (s *MapSession) handleEvent(ctx context.Context, ev sessionEvent) {
	switch ev.kind {
	case frameHello:
		slog.Info("map client hello", "session_id", s.ID, "payload", string(ev.frame.Payload))

	case frameTap:
		if ev.frame.Point == nil {
			return
		}
		outcome, err := s.controller.HandleTap(ctx, *ev.frame.Point)
		metrics.TapsResolved.WithLabelValues(outcome.String()).Inc()
		if err != nil {
			// Tap resolution is best-effort; the map stays usable.
			slog.Warn("tap resolution failed", "session_id", s.ID, "error", err)
		}

	case frameRefresh:
		if err := s.controller.Refresh(ctx); err != nil && !errors.Is(err, usecases.ErrRenderInFlight) {
			slog.Error("manual refresh failed", "session_id", s.ID, "error", err)
		}

	case frameStyleLoaded:
		if err := s.controller.HandleStyleReload(ctx); err != nil && !errors.Is(err, usecases.ErrRenderInFlight) {
			slog.Error("style reload failed", "session_id", s.ID, "error", err)
		}

	case eventMarkerChanged:
		if err := s.controller.HandleMarkerChanged(ctx, ev.marker); err != nil && !errors.Is(err, usecases.ErrRenderInFlight) {
			slog.Warn("marker change refresh failed", "session_id", s.ID, "error", err)
		}

	case eventMarkerRemoved:
		if err := s.controller.HandleMarkerRemoved(ctx, ev.markerID); err != nil && !errors.Is(err, usecases.ErrRenderInFlight) {
			slog.Warn("marker removal refresh failed", "session_id", s.ID, "error", err)
		}
	}
}

func (s *MapSession) keepAlive() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.remote.Ping(); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *MapSession) close() {
	s.closeOnce.Do(func() {
		s.remote.Close()
		_ = s.conn.Close()
	})
}

// Info snapshots the session for /v1/sessions.
func (s *MapSession) Info() SessionInfo {
	visible, fetched, stale := s.controller.Snapshot()
	return SessionInfo{
		ID:          s.ID,
		ConnectedAt: s.ConnectedAt,
		Stale:       stale,
		Visible:     visible,
		Fetched:     fetched,
	}
}

// NotifyStale tells the client its markers no longer match the viewport.
func (s *MapSession) NotifyStale(ctx context.Context) error {
	metrics.StaleNotices.Inc()
	return s.remote.Notice("stale", map[string]string{
		"message": "markers are out of date for this area, refresh to update",
	})
}

// NotifyOpenMarker tells the client to open the detail sheet for a marker.
func (s *MapSession) NotifyOpenMarker(ctx context.Context, markerID string) error {
	return s.remote.Notice("open_marker", map[string]string{"marker_id": markerID})
}
