// Package bootstrap handles application initialization and lifecycle management
// for the index-guard service.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	infralogger "github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/profiling"
)

// migrationShutdownTimeout bounds how long shutdown waits for in-flight runs to roll back.
const migrationShutdownTimeout = 60 * time.Second

// Start initializes and starts the index-guard application.
func Start() error {
	// Phase 1: Load config and create logger
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := CreateLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting Index Guard Service",
		infralogger.String("name", cfg.Service.Name),
		infralogger.String("version", cfg.Service.Version),
		infralogger.Int("port", cfg.Service.Port),
	)

	// Phase 0: Start profilers (if enabled)
	profiler, err := profiling.Start(cfg.Profiling, cfg.Service.Name, log)
	if err != nil {
		return fmt.Errorf("failed to start profiling: %w", err)
	}
	defer func() { _ = profiler.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Phase 2: Setup Elasticsearch
	esClient, err := SetupElasticsearch(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to setup Elasticsearch: %w", err)
	}
	log.Info("Elasticsearch client initialized")

	// Phase 3: Setup audit store
	db, err := SetupDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to setup database: %w", err)
	}
	if db != nil {
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("Failed to close database connection", infralogger.Error(closeErr))
			}
		}()
		log.Info("Database connection established")
	}

	// Phase 4: Setup Redis
	rdb, err := SetupRedis(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to setup Redis: %w", err)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		log.Info("Redis client initialized")
	}

	// Phase 5: Wire services and start background loops
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	services := SetupServices(cfg, esClient, db, rdb, registry, log)
	if err = services.Run(ctx); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}

	// Phase 6: Setup and run HTTP server
	server := SetupHTTPServer(cfg, services, esClient, db, rdb, registry, log)
	runErr := server.Run()

	// Phase 7: Roll back in-flight migrations before the stores close
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), migrationShutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := services.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("Migrations did not stop cleanly", infralogger.Error(shutdownErr))
	}
	cancel()

	if runErr != nil {
		log.Error("Server error", infralogger.Error(runErr))
		return fmt.Errorf("server error: %w", runErr)
	}

	log.Info("Index Guard Service stopped")
	return nil
}
