package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/bilbowatch/internal/adapters/http"
	natsadapter "github.com/samirrijal/bilbowatch/internal/adapters/nats"
	"github.com/samirrijal/bilbowatch/internal/adapters/postgres"
	"github.com/samirrijal/bilbowatch/internal/adapters/valkey"
	"github.com/samirrijal/bilbowatch/internal/core/ports"
	"github.com/samirrijal/bilbowatch/internal/core/usecases"
	"github.com/samirrijal/bilbowatch/internal/pkg/config"
	"github.com/samirrijal/bilbowatch/internal/pkg/logging"
	"github.com/samirrijal/bilbowatch/internal/pkg/metrics"
	"github.com/samirrijal/bilbowatch/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("bilbowatch-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("bilbowatch-api", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache. The read model keeps serving from Postgres when Valkey is down.
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.KeyPrefix)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		cacheSvc = cache
		defer cache.Close()
	}

	// NATS publisher for map interaction events
	var (
		pubSvc   ports.EventPublisher
		natsConn *nats.Conn
	)
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		pubSvc = pub
		natsConn = pub.Conn()
		defer pub.Close()
	}

	// Read model
	markerRepo := postgres.NewMarkerRepo(db)
	markerSvc := usecases.NewMarkerService(markerRepo, cacheSvc)
	sessions := http.NewSessionRegistry()

	// Projector folds report events into the read model and live sessions
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("marker events unavailable, read model is static", "error", err)
	} else {
		defer sub.Close()
		projector := usecases.NewMarkerProjector(sub, markerSvc, sessions)
		if err := projector.Start(ctx); err != nil {
			slog.Error("projector start failed", "error", err)
		}
	}

	deps := &http.Dependencies{
		Markers:   markerSvc,
		Sessions:  sessions,
		Publisher: pubSvc,
		NATS:      natsConn,
		DB:        db,
		Cache:     cache,
		Cfg:       cfg,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "BilboWatch API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.bilbowatch.eus",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// DB pool gauges
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
