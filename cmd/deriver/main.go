package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/shotengai/internal/adapters/nats"
	"github.com/samirrijal/shotengai/internal/adapters/postgres"
	"github.com/samirrijal/shotengai/internal/pkg/config"
	"github.com/samirrijal/shotengai/internal/pkg/logging"
	"github.com/samirrijal/shotengai/internal/pkg/telemetry"
	"github.com/samirrijal/shotengai/internal/workflows"
)

func main() {
	cfg, err := config.Load("shotengai-deriver")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.DeriveFeatureWorkflow)
	activities := &workflows.DeriveActivities{Features: postgres.NewFeatureRepo(db)}
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, derived events will not be published", "error", err)
		} else {
			defer pub.Close()
			activities.Events = pub
		}
	}
	w.RegisterActivity(activities)

	slog.Info("deriver worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
