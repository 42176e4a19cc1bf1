package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/ports"
	"github.com/samirrijal/bilbowatch/internal/core/usecases"
)

// --- Mock MapSurface ---

type fakeSurface struct {
	mu     sync.Mutex
	calls  []string
	opts   ports.SourceOptions
	fc     *geojson.FeatureCollection
	layers map[string]ports.LayerSpec

	addSourceFn    func(ctx context.Context, id string, fc *geojson.FeatureCollection, opts ports.SourceOptions) error
	removeSourceFn func(ctx context.Context, id string) error
	addLayerFn     func(ctx context.Context, spec ports.LayerSpec) error
	removeLayerFn  func(ctx context.Context, id string) error
	setPropFn      func(ctx context.Context, layerID, name string, value any) error
	addImageFn     func(ctx context.Context, name string) error
	queryFn        func(ctx context.Context, pt domain.ScreenPoint, layerIDs []string) ([]ports.QueryHit, error)
	cameraFn       func(ctx context.Context) (domain.Camera, error)
	flyToFn        func(ctx context.Context, to domain.Camera, duration time.Duration) error
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{layers: make(map[string]ports.LayerSpec)}
}

func (f *fakeSurface) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSurface) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSurface) countCalls(prefix string) int {
	n := 0
	for _, c := range f.callLog() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeSurface) AddGeoJSONSource(ctx context.Context, id string, fc *geojson.FeatureCollection, opts ports.SourceOptions) error {
	f.record("add-source " + id)
	if f.addSourceFn != nil {
		return f.addSourceFn(ctx, id, fc, opts)
	}
	f.mu.Lock()
	f.fc = fc
	f.opts = opts
	f.mu.Unlock()
	return nil
}

func (f *fakeSurface) RemoveSource(ctx context.Context, id string) error {
	f.record("remove-source " + id)
	if f.removeSourceFn != nil {
		return f.removeSourceFn(ctx, id)
	}
	return nil
}

func (f *fakeSurface) AddLayer(ctx context.Context, spec ports.LayerSpec) error {
	f.record("add-layer " + spec.ID)
	if f.addLayerFn != nil {
		return f.addLayerFn(ctx, spec)
	}
	f.mu.Lock()
	f.layers[spec.ID] = spec
	f.mu.Unlock()
	return nil
}

func (f *fakeSurface) RemoveLayer(ctx context.Context, id string) error {
	f.record("remove-layer " + id)
	if f.removeLayerFn != nil {
		return f.removeLayerFn(ctx, id)
	}
	return nil
}

func (f *fakeSurface) SetLayerProperty(ctx context.Context, layerID, name string, value any) error {
	f.record(fmt.Sprintf("set-prop %s %s=%v", layerID, name, value))
	if f.setPropFn != nil {
		return f.setPropFn(ctx, layerID, name, value)
	}
	return nil
}

func (f *fakeSurface) AddImage(ctx context.Context, name string) error {
	f.record("add-image " + name)
	if f.addImageFn != nil {
		return f.addImageFn(ctx, name)
	}
	return nil
}

func (f *fakeSurface) QueryRenderedFeatures(ctx context.Context, pt domain.ScreenPoint, layerIDs []string) ([]ports.QueryHit, error) {
	f.record("query " + strings.Join(layerIDs, ","))
	if f.queryFn != nil {
		return f.queryFn(ctx, pt, layerIDs)
	}
	return nil, nil
}

func (f *fakeSurface) Camera(ctx context.Context) (domain.Camera, error) {
	f.record("camera")
	if f.cameraFn != nil {
		return f.cameraFn(ctx)
	}
	return domain.Camera{}, nil
}

func (f *fakeSurface) FlyTo(ctx context.Context, to domain.Camera, duration time.Duration) error {
	f.record(fmt.Sprintf("fly-to %.3f,%.3f z=%.1f", to.Center.Lat, to.Center.Lon, to.Zoom))
	if f.flyToFn != nil {
		return f.flyToFn(ctx, to, duration)
	}
	return nil
}

func sampleMarkers() []domain.Marker {
	return []domain.Marker{
		{ID: "r1", Location: domain.GeoPoint{Lat: 43.263, Lon: -2.935}, Status: domain.StatusReported, Severity: 3},
		{ID: "r2", Location: domain.GeoPoint{Lat: 43.268, Lon: -2.928}, Status: domain.StatusRecovered, Severity: 1},
	}
}

// --- Tests ---

func TestRender_PipelineOrder(t *testing.T) {
	surf := newFakeSurface()
	r := usecases.NewMarkerRenderer(surf, 50, 14)

	if err := r.Render(context.Background(), sampleMarkers()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"remove-layer report-cluster-glow",
		"remove-layer report-clusters",
		"remove-layer report-cluster-count",
		"remove-layer report-points",
		"remove-source reports",
		"add-source reports",
		"add-layer report-cluster-glow",
		"add-layer report-clusters",
		"add-layer report-cluster-count",
		"add-image pin-reported",
		"add-image pin-pending",
		"add-image pin-recovered",
		"add-layer report-points",
	}
	got := surf.callLog()
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if !surf.opts.Cluster {
		t.Error("source must be clustered")
	}
	if surf.opts.ClusterRadius != 50 || surf.opts.ClusterMaxZoom != 14 {
		t.Errorf("expected radius 50 maxzoom 14, got %d %d", surf.opts.ClusterRadius, surf.opts.ClusterMaxZoom)
	}
	if surf.fc == nil || len(surf.fc.Features) != 2 {
		t.Fatalf("expected 2 features in source")
	}
}

func TestRender_PointLayerIconConditional(t *testing.T) {
	surf := newFakeSurface()
	r := usecases.NewMarkerRenderer(surf, 50, 14)

	if err := r.Render(context.Background(), sampleMarkers()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spec, ok := surf.layers["report-points"]
	if !ok {
		t.Fatal("points layer was not added")
	}
	if spec.Type != "symbol" {
		t.Errorf("expected symbol layer, got %s", spec.Type)
	}
	icon := fmt.Sprint(spec.Layout["icon-image"])
	for _, pin := range []string{"pin-reported", "pin-pending", "pin-recovered"} {
		if !strings.Contains(icon, pin) {
			t.Errorf("icon expression missing %s: %s", pin, icon)
		}
	}
}

func TestRender_EmptySetTearsDown(t *testing.T) {
	surf := newFakeSurface()
	r := usecases.NewMarkerRenderer(surf, 50, 14)

	if err := r.Render(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := surf.countCalls("add-"); n != 0 {
		t.Errorf("expected no additions for an empty set, got %d", n)
	}
	if n := surf.countCalls("remove-"); n != 5 {
		t.Errorf("expected 5 removals, got %d", n)
	}
}

func TestRender_ConcurrentRenderRejected(t *testing.T) {
	surf := newFakeSurface()
	entered := make(chan struct{})
	release := make(chan struct{})
	surf.addSourceFn = func(context.Context, string, *geojson.FeatureCollection, ports.SourceOptions) error {
		close(entered)
		<-release
		return nil
	}

	r := usecases.NewMarkerRenderer(surf, 50, 14)
	done := make(chan error, 1)
	go func() { done <- r.Render(context.Background(), sampleMarkers()) }()

	<-entered
	if err := r.Render(context.Background(), sampleMarkers()); !errors.Is(err, usecases.ErrRenderInFlight) {
		t.Fatalf("expected ErrRenderInFlight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first render failed: %v", err)
	}
}

func TestRender_SlotReleasedAfterFailure(t *testing.T) {
	surf := newFakeSurface()
	failed := false
	surf.addSourceFn = func(context.Context, string, *geojson.FeatureCollection, ports.SourceOptions) error {
		if !failed {
			failed = true
			return fmt.Errorf("client went away")
		}
		return nil
	}

	r := usecases.NewMarkerRenderer(surf, 50, 14)
	if err := r.Render(context.Background(), sampleMarkers()); err == nil {
		t.Fatal("expected first render to fail")
	}
	if err := r.Render(context.Background(), sampleMarkers()); err != nil {
		t.Fatalf("slot was not released after failure: %v", err)
	}
}

func TestRender_ToleratesMissingPieces(t *testing.T) {
	surf := newFakeSurface()
	surf.removeLayerFn = func(context.Context, string) error { return ports.ErrNotFound }
	surf.removeSourceFn = func(context.Context, string) error { return ports.ErrNotFound }

	r := usecases.NewMarkerRenderer(surf, 50, 14)
	if err := r.Render(context.Background(), sampleMarkers()); err != nil {
		t.Fatalf("teardown of a bare style must succeed: %v", err)
	}
	if n := surf.countCalls("add-source"); n != 1 {
		t.Errorf("expected source to be added, got %d calls", n)
	}
}

func TestRender_TeardownFailureAborts(t *testing.T) {
	surf := newFakeSurface()
	surf.removeLayerFn = func(context.Context, string) error { return fmt.Errorf("surface detached") }

	r := usecases.NewMarkerRenderer(surf, 50, 14)
	if err := r.Render(context.Background(), sampleMarkers()); err == nil {
		t.Fatal("expected error from failed teardown")
	}
	if n := surf.countCalls("add-"); n != 0 {
		t.Errorf("expected no additions after failed teardown, got %d", n)
	}
}

func TestRender_ImagesProvisionedOncePerStyle(t *testing.T) {
	surf := newFakeSurface()
	r := usecases.NewMarkerRenderer(surf, 50, 14)

	for i := 0; i < 2; i++ {
		if err := r.Render(context.Background(), sampleMarkers()); err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
	}
	if n := surf.countCalls("add-image"); n != 3 {
		t.Errorf("expected 3 image registrations across renders, got %d", n)
	}

	r.ResetImages()
	if err := r.Render(context.Background(), sampleMarkers()); err != nil {
		t.Fatalf("render after reset: %v", err)
	}
	if n := surf.countCalls("add-image"); n != 6 {
		t.Errorf("expected re-registration after style reset, got %d total", n)
	}
}

func TestSetDimmed_MissingLayersSkipped(t *testing.T) {
	surf := newFakeSurface()
	surf.setPropFn = func(context.Context, string, string, any) error { return ports.ErrNotFound }

	r := usecases.NewMarkerRenderer(surf, 50, 14)
	if err := r.SetDimmed(context.Background(), true); err != nil {
		t.Fatalf("dimming with nothing rendered must be a no-op: %v", err)
	}
}

func TestSetDimmed_TogglesOpacity(t *testing.T) {
	surf := newFakeSurface()
	r := usecases.NewMarkerRenderer(surf, 50, 14)

	if err := r.SetDimmed(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.SetDimmed(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log := surf.callLog()
	if len(log) != 4 {
		t.Fatalf("expected 4 property writes, got %v", log)
	}
	if !strings.Contains(log[0], "icon-opacity=0.4") {
		t.Errorf("expected dim write first, got %q", log[0])
	}
	if !strings.Contains(log[2], "icon-opacity=1") {
		t.Errorf("expected restore write, got %q", log[2])
	}
}
