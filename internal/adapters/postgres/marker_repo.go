package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/pkg/geospatial"
)

// MarkerRepo implements ports.MarkerRepository with pgx.
type MarkerRepo struct {
	db *DB
}

// NewMarkerRepo creates a new MarkerRepo.
func NewMarkerRepo(db *DB) *MarkerRepo {
	return &MarkerRepo{db: db}
}

// Upsert inserts or updates a single marker, keyed by the report ID the
// reports service assigned.
func (r *MarkerRepo) Upsert(ctx context.Context, m *domain.Marker) error {
	created, updated := m.CreatedAt, m.UpdatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO markers (id, status, severity, is_pending, category, title, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, ST_SetSRID(ST_MakePoint($7, $8), 4326)::geography, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, severity = EXCLUDED.severity,
		    is_pending = EXCLUDED.is_pending, category = EXCLUDED.category,
		    title = EXCLUDED.title, location = EXCLUDED.location,
		    updated_at = EXCLUDED.updated_at
	`, m.ID, string(m.Status), m.Severity, m.IsPending,
		nilIfEmpty(m.Category), nilIfEmpty(m.Title),
		m.Location.Lon, m.Location.Lat, created, updated)
	return err
}

// UpsertBatch inserts many markers using pgx.Batch.
func (r *MarkerRepo) UpsertBatch(ctx context.Context, markers []domain.Marker) error {
	batch := &pgx.Batch{}
	for _, m := range markers {
		created, updated := m.CreatedAt, m.UpdatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if updated.IsZero() {
			updated = created
		}
		batch.Queue(`
			INSERT INTO markers (id, status, severity, is_pending, category, title, location, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, ST_SetSRID(ST_MakePoint($7, $8), 4326)::geography, $9, $10)
			ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status, severity = EXCLUDED.severity,
			    is_pending = EXCLUDED.is_pending, category = EXCLUDED.category,
			    title = EXCLUDED.title, location = EXCLUDED.location,
			    updated_at = EXCLUDED.updated_at
		`, m.ID, string(m.Status), m.Severity, m.IsPending,
			nilIfEmpty(m.Category), nilIfEmpty(m.Title),
			m.Location.Lon, m.Location.Lat, created, updated)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range markers {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// Delete removes a marker. Deleting an unknown ID is not an error.
func (r *MarkerRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM markers WHERE id = $1`, id)
	return err
}

// GetByID returns a marker by report ID.
func (r *MarkerRepo) GetByID(ctx context.Context, id string) (*domain.Marker, error) {
	var m domain.Marker
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, status, severity, is_pending,
		       COALESCE(category, ''), COALESCE(title, ''),
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       created_at, updated_at
		FROM markers WHERE id = $1
	`, id).Scan(
		&m.ID, &m.Status, &m.Severity, &m.IsPending,
		&m.Category, &m.Title,
		&m.Location.Lat, &m.Location.Lon,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindInBounds returns markers inside the box, highest severity first.
func (r *MarkerRepo) FindInBounds(ctx context.Context, b domain.Bounds, status domain.MarkerStatus, limit int) ([]domain.Marker, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, status, severity, is_pending,
		       COALESCE(category, ''), COALESCE(title, ''),
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       created_at, updated_at
		FROM markers
		WHERE ST_Intersects(location, ST_MakeEnvelope($1, $2, $3, $4, 4326)::geography)
		  AND ($5 = '' OR status = $5)
		ORDER BY severity DESC, created_at DESC
		LIMIT $6
	`, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markers []domain.Marker
	for rows.Next() {
		var m domain.Marker
		if err := rows.Scan(
			&m.ID, &m.Status, &m.Severity, &m.IsPending,
			&m.Category, &m.Title,
			&m.Location.Lat, &m.Location.Lon,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// FindNearby returns markers within radiusMeters using PostGIS ST_DWithin.
// A bounding box narrows the candidates before the exact distance check.
func (r *MarkerRepo) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Marker, error) {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(lat, lon, radiusMeters)

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, status, severity, is_pending,
		       COALESCE(category, ''), COALESCE(title, ''),
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       created_at, updated_at,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance
		FROM markers
		WHERE ST_Intersects(location, ST_MakeEnvelope($4, $5, $6, $7, 4326)::geography)
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance
		LIMIT $8
	`, lon, lat, radiusMeters, minLon, minLat, maxLon, maxLat, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markers []domain.Marker
	for rows.Next() {
		var m domain.Marker
		var dist float64
		if err := rows.Scan(
			&m.ID, &m.Status, &m.Severity, &m.IsPending,
			&m.Category, &m.Title,
			&m.Location.Lat, &m.Location.Lon,
			&m.CreatedAt, &m.UpdatedAt,
			&dist,
		); err != nil {
			return nil, err
		}
		m.Distance = &dist
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// CountByStatus returns marker counts grouped by status.
func (r *MarkerRepo) CountByStatus(ctx context.Context) (map[domain.MarkerStatus]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM markers GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.MarkerStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.MarkerStatus(status)] = n
	}
	return counts, rows.Err()
}
