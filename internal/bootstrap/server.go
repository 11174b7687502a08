package bootstrap

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	infragin "github.com/jonesrussell/north-cloud/index-guard/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/internal/api"
	"github.com/jonesrussell/north-cloud/index-guard/internal/config"
	"github.com/jonesrussell/north-cloud/index-guard/internal/database"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
)

const httpTimeoutSeconds = 15

// SetupHTTPServer creates and configures the HTTP server.
func SetupHTTPServer(
	cfg *config.Config,
	services *Services,
	esClient *elasticsearch.Client,
	db *database.Connection,
	rdb *redis.Client,
	registry *prometheus.Registry,
	log infralogger.Logger,
) *infragin.Server {
	handler := api.NewHandler(services.Migrations, services.Health, services.Resilience, log)
	if services.Events != nil {
		handler.WithEvents(services.Events)
	}

	serverConfig := api.ServerConfig{
		Port:              cfg.Service.Port,
		ReadTimeout:       httpTimeoutSeconds * time.Second,
		WriteTimeout:      httpTimeoutSeconds * time.Second,
		Debug:             cfg.Service.Debug,
		ServiceName:       cfg.Service.Name,
		Version:           cfg.Service.Version,
		JWTSecret:         cfg.Auth.JWTSecret,
		Registry:          registry,
		ElasticsearchPing: esClient.Ping,
	}
	if db != nil {
		serverConfig.DatabasePing = db.Ping
	}
	if rdb != nil {
		serverConfig.RedisPing = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}

	server := api.NewServer(handler, serverConfig, log)
	if services.Events != nil {
		server.OnShutdown(func() {
			if err := services.Events.Stop(); err != nil {
				log.Warn("Event stream did not stop cleanly", infralogger.Error(err))
			}
		})
	}
	return server
}
