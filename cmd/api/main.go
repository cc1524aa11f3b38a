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
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/samirrijal/shotengai/internal/adapters/http"
	natsadapter "github.com/samirrijal/shotengai/internal/adapters/nats"
	"github.com/samirrijal/shotengai/internal/adapters/postgres"
	"github.com/samirrijal/shotengai/internal/adapters/valkey"
	"github.com/samirrijal/shotengai/internal/core/ports"
	"github.com/samirrijal/shotengai/internal/core/usecases"
	"github.com/samirrijal/shotengai/internal/pkg/config"
	"github.com/samirrijal/shotengai/internal/pkg/logging"
	"github.com/samirrijal/shotengai/internal/pkg/telemetry"
	"github.com/samirrijal/shotengai/internal/workflows"
)

func main() {
	cfg, err := config.Load("shotengai-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

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

	// Optional collaborators stay nil interfaces when unavailable.
	var (
		cacheSvc  ports.CacheService
		publisher ports.EventPublisher
		scheduler ports.DerivationScheduler
	)

	var cache *valkey.Cache
	if cfg.Valkey.Enabled {
		cache, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer cache.Close()
			cacheSvc = cache
		}
	}

	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
		}

		// Raw connection for websocket relays
		natsConn, err = natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
			natsConn = nil
		} else {
			defer natsConn.Close()
		}
	}

	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    tlog.NewStructuredLogger(slog.Default()),
		})
		if err != nil {
			slog.Warn("temporal unavailable, derived attributes will not be computed", "error", err)
		} else {
			defer tc.Close()
			scheduler = workflows.NewScheduler(tc, cfg.Temporal.TaskQueue)
		}
	}

	features := usecases.NewFeatureService(postgres.NewFeatureRepo(db), cacheSvc, publisher, scheduler)

	if cfg.NATS.Enabled && cacheSvc != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats subscriber unavailable, cache relies on ttl", "error", err)
		} else if err := sub.SubscribeFeatureEvents(ctx, features.HandleFeatureEvent); err != nil {
			slog.Warn("subscribe feature events failed", "error", err)
			sub.Close()
		} else {
			defer sub.Close()
		}
	}

	deps := &http.Dependencies{
		Features:      features,
		Authorizer:    http.NewTokenAuthorizer(cfg.Auth.EditorTokens),
		NATS:          natsConn,
		DB:            db,
		Cache:         cache,
		FixTransposed: cfg.Sync.FixTransposed,
		WriteTimeout:  time.Duration(cfg.Sync.WriteTimeout) * time.Second,
	}
	if len(cfg.Auth.EditorTokens) == 0 {
		slog.Warn("no editor tokens configured, API is read-only")
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // 4 MB max request body
		AppName:      "Shotengai Atlas API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.shotengai.jp",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-None-Match",
		ExposeHeaders:    "ETag, Link, X-Total-Count, Deprecation, Sunset",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
