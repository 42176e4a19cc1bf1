package http

import (
	"github.com/nats-io/nats.go"
	"github.com/samirrijal/bilbowatch/internal/adapters/postgres"
	"github.com/samirrijal/bilbowatch/internal/adapters/valkey"
	"github.com/samirrijal/bilbowatch/internal/core/ports"
	"github.com/samirrijal/bilbowatch/internal/core/usecases"
	"github.com/samirrijal/bilbowatch/internal/pkg/config"
)

// Dependencies holds all services needed by HTTP handlers and map sessions.
type Dependencies struct {
	Markers   *usecases.MarkerService
	Sessions  *SessionRegistry
	Publisher ports.EventPublisher
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
	Cfg       *config.Config
}
