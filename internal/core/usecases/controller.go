package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/ports"
)

// MarkerFinder supplies markers for a bounding box. *MarkerService
// implements it.
type MarkerFinder interface {
	FindInBounds(ctx context.Context, b domain.Bounds, status domain.MarkerStatus, limit int) ([]domain.Marker, error)
}

// SessionNotifier pushes out-of-band notices to a session's client.
type SessionNotifier interface {
	NotifyStale(ctx context.Context) error
	NotifyOpenMarker(ctx context.Context, markerID string) error
}

// CameraOutcome names the decision a camera-idle event led to.
type CameraOutcome int

const (
	// CameraSkipped means the move was jitter below the thresholds.
	CameraSkipped CameraOutcome = iota
	// CameraCovered means the map moved but fetched data still covers it.
	CameraCovered
	// CameraFetched means markers were refetched and re-rendered.
	CameraFetched
	// CameraStale means a needed refetch was suppressed and the client told.
	CameraStale
)

func (o CameraOutcome) String() string {
	switch o {
	case CameraSkipped:
		return "skipped"
	case CameraCovered:
		return "covered"
	case CameraFetched:
		return "fetched"
	case CameraStale:
		return "stale"
	default:
		return "unknown"
	}
}

// ControllerConfig carries the per-session viewport tuning.
type ControllerConfig struct {
	// BufferFraction widens fetches beyond the visible box on every side.
	BufferFraction     float64
	UnchangedThreshold float64
	MinOverlapRatio    float64
	// AutoRefresh refetches when the viewport leaves fetched bounds. When
	// off, the session dims the markers and notifies the client instead.
	AutoRefresh   bool
	MarkerLimit   int
	TapZoomStep   float64
	MaxZoom       float64
	FlyToDuration time.Duration
	// RefreshMinInterval floors how often marker events may force a
	// refetch. Zero disables the floor.
	RefreshMinInterval time.Duration
}

// ViewportController runs the camera-to-markers pipeline for one map
// session. Camera events arrive from the session's read loop, marker events
// from the projector; both may call in concurrently.
type ViewportController struct {
	sessionID string
	markers   MarkerFinder
	renderer  *MarkerRenderer
	surface   ports.MapSurface
	publisher ports.EventPublisher
	notifier  SessionNotifier
	cmp       BoundsComparator
	cfg       ControllerConfig
	limiter   *rate.Limiter

	mu      sync.Mutex
	visible *domain.Viewport
	fetched *domain.Viewport
	stale   bool
}

// NewViewportController creates a new ViewportController.
func NewViewportController(
	sessionID string,
	markers MarkerFinder,
	renderer *MarkerRenderer,
	surface ports.MapSurface,
	publisher ports.EventPublisher,
	notifier SessionNotifier,
	cfg ControllerConfig,
) *ViewportController {
	return &ViewportController{
		sessionID: sessionID,
		markers:   markers,
		renderer:  renderer,
		surface:   surface,
		publisher: publisher,
		notifier:  notifier,
		cmp:       NewBoundsComparator(cfg.UnchangedThreshold, cfg.MinOverlapRatio),
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(cfg.RefreshMinInterval), 1),
	}
}

// HandleCameraIdle decides what a settled camera means for the marker set:
// skip jitter, ride out moves the buffered fetch already covers, and
// refetch the rest. With auto refresh off, a needed refetch instead dims
// the map and notifies the client that the view is stale.
func (c *ViewportController) HandleCameraIdle(ctx context.Context, v domain.Viewport) (CameraOutcome, error) {
	candidate := v.Buffered(c.cfg.BufferFraction)

	c.mu.Lock()
	vis := v
	c.visible = &vis
	fetched := c.fetched
	c.mu.Unlock()

	if c.cmp.Unchanged(candidate, fetched) {
		return CameraSkipped, nil
	}
	if fetched != nil && !c.cmp.OutsideFetched(v.Bounds, fetched.Bounds) {
		return CameraCovered, nil
	}
	if fetched != nil && !c.cfg.AutoRefresh {
		return CameraStale, c.markStale(ctx)
	}
	return CameraFetched, c.fetchAndRender(ctx, candidate)
}

// Refresh refetches the last visible viewport no matter how little it
// moved. Before the first camera event there is nothing to refresh.
func (c *ViewportController) Refresh(ctx context.Context) error {
	c.mu.Lock()
	visible := c.visible
	c.mu.Unlock()
	if visible == nil {
		return nil
	}
	return c.fetchAndRender(ctx, visible.Buffered(c.cfg.BufferFraction))
}

// HandleStyleReload rebuilds marker state after the client swapped its base
// style, which dropped every source, layer, and image the renderer owned.
func (c *ViewportController) HandleStyleReload(ctx context.Context) error {
	c.renderer.ResetImages()
	c.mu.Lock()
	c.fetched = nil
	c.stale = false
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// HandleMarkerChanged refreshes the session when a marker inside its
// fetched region changes. Bursts collapse through the rate limiter; a
// skipped refresh is picked up by the next camera event or marker event.
func (c *ViewportController) HandleMarkerChanged(ctx context.Context, m *domain.Marker) error {
	c.mu.Lock()
	fetched := c.fetched
	c.mu.Unlock()
	if fetched == nil || !fetched.Bounds.Contains(m.Location) {
		return nil
	}
	if !c.limiter.Allow() {
		return nil
	}
	return c.Refresh(ctx)
}

// HandleMarkerRemoved refreshes after a deletion. Removals carry no
// location, so any session with fetched data refreshes.
func (c *ViewportController) HandleMarkerRemoved(ctx context.Context, markerID string) error {
	c.mu.Lock()
	fetched := c.fetched
	c.mu.Unlock()
	if fetched == nil {
		return nil
	}
	if !c.limiter.Allow() {
		return nil
	}
	return c.Refresh(ctx)
}

// Snapshot reports the controller's current viewport state. The returned
// viewports are copies.
func (c *ViewportController) Snapshot() (visible, fetched *domain.Viewport, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visible != nil {
		v := *c.visible
		visible = &v
	}
	if c.fetched != nil {
		f := *c.fetched
		fetched = &f
	}
	return visible, fetched, c.stale
}

func (c *ViewportController) fetchAndRender(ctx context.Context, candidate domain.Viewport) error {
	markers, err := c.markers.FindInBounds(ctx, candidate.Bounds, "", c.cfg.MarkerLimit)
	if err != nil {
		return fmt.Errorf("fetch markers: %w", err)
	}

	c.mu.Lock()
	prevFetched, prevStale := c.fetched, c.stale
	c.fetched = &candidate
	c.stale = false
	c.mu.Unlock()

	if err := c.renderer.Render(ctx, markers); err != nil {
		// Roll back so the next camera event retries instead of skipping,
		// unless a concurrent fetch already advanced the state.
		c.mu.Lock()
		if c.fetched == &candidate {
			c.fetched, c.stale = prevFetched, prevStale
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *ViewportController) markStale(ctx context.Context) error {
	c.mu.Lock()
	wasStale := c.stale
	c.stale = true
	c.mu.Unlock()
	if wasStale {
		return nil
	}
	if err := c.renderer.SetDimmed(ctx, true); err != nil {
		// Let the next event retry the dim and the notice.
		c.mu.Lock()
		c.stale = false
		c.mu.Unlock()
		return err
	}
	return c.notifier.NotifyStale(ctx)
}
