//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samirrijal/bilbowatch/internal/adapters/http"
	"github.com/samirrijal/bilbowatch/internal/adapters/postgres"
	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/usecases"
	"github.com/samirrijal/bilbowatch/internal/pkg/config"
)

// setupTestDB connects to the test database and returns a clean DB instance.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("bilbowatch-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	dsn := cfg.Database.DSN()
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}

	db := &postgres.DB{Pool: pool}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	return db
}

// setupTestDeps creates dependencies with a real DB and repo, no cache.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	markerRepo := postgres.NewMarkerRepo(db)

	return &http.Dependencies{
		Markers:  usecases.NewMarkerService(markerRepo, nil),
		Sessions: http.NewSessionRegistry(),
		DB:       db,
		Cfg:      testConfig(),
	}
}

// seedTestMarker inserts a test marker at the given location.
func seedTestMarker(t *testing.T, db *postgres.DB, id string, status domain.MarkerStatus, severity int, lat, lon float64) {
	ctx := context.Background()
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO markers (id, status, severity, is_pending, title, location, created_at, updated_at)
		VALUES ($1, $2, $3, false, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography, now(), now())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, severity = EXCLUDED.severity,
			location = EXCLUDED.location, updated_at = now()
	`, id, string(status), severity, "Test marker "+id, lon, lat); err != nil {
		t.Fatalf("seed marker: %v", err)
	}
}

// TestMarkersInBounds_Integration tests the bounding box query against a real database.
func TestMarkersInBounds_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	// Two markers in central Bilbao, one outside the box
	seedTestMarker(t, db, "test_bbox_1", domain.StatusReported, 3, 43.263, -2.935)
	seedTestMarker(t, db, "test_bbox_2", domain.StatusReported, 1, 43.266, -2.928)
	seedTestMarker(t, db, "test_bbox_out", domain.StatusReported, 2, 43.500, -2.500)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/markers?min_lat=43.25&min_lon=-2.96&max_lat=43.28&max_lon=-2.90", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Marker     `json:"data"`
		Pagination struct{ Total int } `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if result.Pagination.Total < 2 {
		t.Errorf("expected at least 2 markers in box, got %d", result.Pagination.Total)
	}
	for _, m := range result.Data {
		if m.ID == "test_bbox_out" {
			t.Error("marker outside the box returned")
		}
	}
}

// TestGetMarker_Integration tests marker lookup against a real database.
func TestGetMarker_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	id := "test_integ_" + time.Now().Format("20060102150405")
	seedTestMarker(t, db, id, domain.StatusAcknowledged, 4, 43.263, -2.935)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/markers/"+id, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var marker domain.Marker
	if err := json.NewDecoder(resp.Body).Decode(&marker); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if marker.ID != id {
		t.Errorf("expected id %s, got %s", id, marker.ID)
	}
	if marker.Status != domain.StatusAcknowledged {
		t.Errorf("expected acknowledged status, got %s", marker.Status)
	}
}

// TestNearbyMarkers_Integration tests the geospatial query against a real database.
func TestNearbyMarkers_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	// Bilbao coordinates: 43.263, -2.935
	seedTestMarker(t, db, "test_spatial_1", domain.StatusReported, 2, 43.263, -2.935)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	// Search nearby Abando
	req := httptest.NewRequest("GET", "/v1/markers/nearby?lat=43.263&lon=-2.935&radius=5000", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var markers []domain.Marker
	if err := json.NewDecoder(resp.Body).Decode(&markers); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(markers) == 0 {
		t.Error("expected at least 1 nearby marker, got 0")
	}
	if len(markers) > 0 && markers[0].Distance == nil {
		t.Error("expected distance on nearby marker")
	}
}
