package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/index-guard/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/index-guard/internal/config"
	"github.com/jonesrussell/north-cloud/index-guard/internal/database"
)

// SetupDatabase creates the audit store connection and applies pending
// migrations. It returns nil when the store is disabled.
func SetupDatabase(cfg *config.Config, log infralogger.Logger) (*database.Connection, error) {
	if !cfg.Database.Enabled {
		log.Warn("Audit store disabled, migration history is kept in memory only")
		return nil, nil //nolint:nilnil // the store is optional
	}

	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnectionMaxLifetime,
	}

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}

	if migrateErr := db.RunMigrations(log); migrateErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database migrations: %w", migrateErr)
	}
	return db, nil
}

// SetupRedis creates the Redis client used for alerts and the metrics
// stream. It returns nil when Redis is disabled.
func SetupRedis(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Info("Redis disabled, alerts are written to the log")
		return nil, nil //nolint:nilnil // redis is optional
	}

	client, err := infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}
