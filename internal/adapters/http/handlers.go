package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/bilbowatch/internal/core/domain"
)

// SystemStatus holds freshness statistics about the marker read model.
type SystemStatus struct {
	Markers    int    `json:"markers"`
	Pending    int    `json:"pending"`
	Sessions   int    `json:"sessions"`
	LastReport string `json:"last_report,omitempty"`
}

// SystemStatusHandler returns row counts from the markers table plus the
// live session count.
func SystemStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var status SystemStatus
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM markers),
				(SELECT count(*) FROM markers WHERE is_pending),
				COALESCE((SELECT max(updated_at)::text FROM markers), '')
		`)
		if err := row.Scan(&status.Markers, &status.Pending, &status.LastReport); err != nil {
			return errInternal(c, err.Error())
		}
		if deps.Sessions != nil {
			status.Sessions = deps.Sessions.Len()
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(status)
	}
}

// MarkersInBoundsHandler returns markers inside a bounding box.
// GET /v1/markers?min_lat=43.2&min_lon=-2.96&max_lat=43.3&max_lon=-2.9&status=reported
func MarkersInBoundsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b := domain.Bounds{
			MinLat: c.QueryFloat("min_lat", 0),
			MinLon: c.QueryFloat("min_lon", 0),
			MaxLat: c.QueryFloat("max_lat", 0),
			MaxLon: c.QueryFloat("max_lon", 0),
		}
		if b == (domain.Bounds{}) {
			return errBadRequest(c, "min_lat, min_lon, max_lat and max_lon are required")
		}
		if !b.Valid() {
			return errBadRequest(c, "min edges must not exceed max edges")
		}

		status := domain.MarkerStatus(c.Query("status"))
		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		markers, err := deps.Markers.FindInBounds(c.Context(), b, status, 500)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		// Apply offset/limit pagination on the full result
		offset := c.QueryInt("offset", 0)
		if offset < 0 {
			offset = 0
		}

		total := len(markers)
		if offset >= total {
			markers = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			markers = markers[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: markers, Pagination: pg})
	}
}

// NearbyMarkersHandler returns markers within a radius of a point.
func NearbyMarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)
		radius := c.QueryFloat("radius", 500)
		limit := c.QueryInt("limit", 50)

		if lat == 0 || lon == 0 {
			return errBadRequest(c, "lat and lon are required")
		}
		if radius <= 0 || radius > 10000 {
			return errBadRequest(c, "radius must be between 1 and 10000 meters")
		}
		if limit <= 0 || limit > 100 {
			limit = 50
		}

		markers, err := deps.Markers.FindNearby(c.Context(), lat, lon, radius, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(markers)
	}
}

// MarkerStatsHandler returns marker counts grouped by status.
func MarkerStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		counts, err := deps.Markers.Stats(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}

		total := 0
		for _, n := range counts {
			total += n
		}

		c.Set("Cache-Control", "public, max-age=30")
		return c.JSON(fiber.Map{
			"total":     total,
			"by_status": counts,
		})
	}
}

// GetMarkerHandler returns a single marker by ID.
func GetMarkerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "marker id is required")
		}
		marker, err := deps.Markers.GetByID(c.Context(), id)
		if err != nil {
			return errNotFound(c, "marker not found")
		}
		return c.JSON(marker)
	}
}

// ListSessionsHandler returns the live map sessions for ops visibility.
func ListSessionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Sessions == nil {
			return errInternal(c, "session registry not available")
		}

		sessions := deps.Sessions.Snapshot()
		c.Set("Cache-Control", "no-cache")
		return c.JSON(fiber.Map{
			"sessions": sessions,
			"count":    len(sessions),
		})
	}
}
