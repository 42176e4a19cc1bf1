package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/samirrijal/bilbowatch/internal/adapters/postgres"
	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/pkg/config"
)

// Loads a GeoJSON FeatureCollection of hazard markers straight into the
// read model, bypassing the event stream. Meant for demos and local dev.
func main() {
	cfg, err := config.Load("bilbowatch-seed")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	path := "seed/markers.geojson"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		log.Fatalf("parse %s: %v", path, err)
	}

	now := time.Now()
	markers := make([]domain.Marker, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(*geom.Point)
		if !ok {
			log.Printf("skip feature %q: geometry is not a point", f.ID)
			continue
		}

		m := domain.Marker{
			ID:        f.ID,
			Location:  domain.GeoPoint{Lat: pt.Y(), Lon: pt.X()},
			Status:    domain.StatusReported,
			Severity:  domain.SeverityMedium,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if s, ok := f.Properties["status"].(string); ok {
			m.Status = domain.MarkerStatus(s)
		}
		if sev, ok := f.Properties["severity"].(float64); ok {
			m.Severity = int(sev)
		}
		if p, ok := f.Properties["is_pending"].(bool); ok {
			m.IsPending = p
		}
		if cat, ok := f.Properties["category"].(string); ok {
			m.Category = cat
		}
		if title, ok := f.Properties["title"].(string); ok {
			m.Title = title
		}
		markers = append(markers, m)
	}

	repo := postgres.NewMarkerRepo(db)
	if err := repo.UpsertBatch(ctx, markers); err != nil {
		log.Fatalf("upsert markers: %v", err)
	}

	log.Printf("seeded %d markers from %s", len(markers), path)
}
