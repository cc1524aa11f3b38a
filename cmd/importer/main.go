package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	natsadapter "github.com/samirrijal/shotengai/internal/adapters/nats"
	"github.com/samirrijal/shotengai/internal/adapters/postgres"
	"github.com/samirrijal/shotengai/internal/adapters/valkey"
	"github.com/samirrijal/shotengai/internal/core/ports"
	"github.com/samirrijal/shotengai/internal/core/usecases"
	"github.com/samirrijal/shotengai/internal/pkg/config"
	"github.com/samirrijal/shotengai/internal/pkg/logging"
)

// importer <collection.geojson> [workers]
//
// Loads a GeoJSON FeatureCollection of LineString/MultiLineString features
// through the same write path the editor uses. Features carrying an "id"
// property replace the stored row; the rest are created.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: importer <collection.geojson> [workers]")
	}

	cfg, err := config.Load("shotengai-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup("shotengai-importer", cfg.Log.Level, cfg.Log.Format)

	workers := 4
	if len(os.Args) > 2 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			workers = n
		}
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("read collection: %v", err)
	}
	features, skipped, err := decodeCollection(data, cfg.Sync.FixTransposed, logger)
	if err != nil {
		log.Fatalf("parse collection: %v", err)
	}
	logger.Info("collection parsed", "features", len(features), "skipped", skipped)

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var (
		cacheSvc  ports.CacheService
		publisher ports.EventPublisher
	)
	if cfg.Valkey.Enabled {
		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			logger.Warn("valkey unavailable, cached reads expire by ttl", "error", err)
		} else {
			defer cache.Close()
			cacheSvc = cache
		}
	}
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			logger.Warn("nats unavailable, editors will not see imported features until refresh", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
		}
	}

	store := usecases.NewFeatureService(postgres.NewFeatureRepo(db), cacheSvc, publisher, nil)
	client := usecases.NewSyncClient(store, usecases.WithSyncLogger(logger))

	var wg sync.WaitGroup
	var saved, failed atomic.Int64
	sem := make(chan struct{}, workers)

	for _, f := range features {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ack, err := client.Save(ctx, f)
			if err != nil {
				failed.Add(1)
				logger.Error("import failed", "id", f.ID, "name", f.DisplayName(), "error", err)
				return
			}
			saved.Add(1)
			logger.Debug("imported", "id", ack.ID, "name", f.DisplayName())
		}()
	}
	wg.Wait()

	logger.Info("import complete", "saved", saved.Load(), "failed", failed.Load(), "skipped", skipped)
	if failed.Load() > 0 {
		os.Exit(1)
	}
}
