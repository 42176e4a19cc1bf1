package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Adds sensible defaults if not already set by the handler.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Only set on GET requests
		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		// Default cache times by endpoint pattern
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10" // Very short for system checks

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/graphql":
			ttl = "private, max-age=0" // GraphQL varies wildly

		case path == "/v1/sessions":
			ttl = "no-cache" // Live session list

		case strings.HasPrefix(path, "/v1/markers/nearby"):
			ttl = "public, max-age=60"

		case strings.HasPrefix(path, "/v1/markers/stats"):
			ttl = "public, max-age=30"

		case strings.HasPrefix(path, "/v1/markers/"):
			ttl = "public, max-age=300" // Single marker detail

		case strings.HasPrefix(path, "/v1/markers"):
			ttl = "public, max-age=15" // Bbox results track the read-model TTL

		case path == "/v1/status":
			ttl = "public, max-age=60"

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=60" // Default for API endpoints
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
