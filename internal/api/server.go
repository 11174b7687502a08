package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	infragin "github.com/jonesrussell/north-cloud/index-guard/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/metrics"
)

// Default timeout values.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultServiceName  = "index-guard"
	serviceVersion      = "1.0.0"
	metricsNamespace    = "indexguard"
)

// PingFunc checks that a dependency is reachable.
type PingFunc func(ctx context.Context) error

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
	ServiceName  string
	Version      string
	JWTSecret    string //nolint:gosec // G117: auth config

	// Registry receives HTTP metrics and is served on /metrics when set.
	Registry *prometheus.Registry

	// Nil pings are not registered as health checks.
	ElasticsearchPing PingFunc
	DatabasePing      PingFunc
	RedisPing         PingFunc
}

// NewServer creates a new HTTP server using the infrastructure gin package.
func NewServer(handler *Handler, config ServerConfig, infraLog infralogger.Logger) *infragin.Server {
	readTimeout := config.ReadTimeout
	if readTimeout == 0 {
		readTimeout = defaultReadTimeout
	}
	writeTimeout := config.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = defaultWriteTimeout
	}
	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	version := config.Version
	if version == "" {
		version = serviceVersion
	}

	builder := infragin.NewServerBuilder(serviceName, config.Port).
		WithLogger(infraLog).
		WithDebug(config.Debug).
		WithVersion(version).
		WithTimeouts(readTimeout, writeTimeout, defaultIdleTimeout)

	if config.ElasticsearchPing != nil {
		builder.WithElasticsearchHealthCheck(config.ElasticsearchPing)
	}
	if config.DatabasePing != nil {
		builder.WithDatabaseHealthCheck(config.DatabasePing)
	}
	if config.RedisPing != nil {
		builder.WithRedisHealthCheck(config.RedisPing)
	}

	var gatherer prometheus.Gatherer
	if config.Registry != nil {
		builder.WithMiddleware(metrics.NewHTTPMetrics(config.Registry, metricsNamespace).Middleware())
		gatherer = config.Registry
	}

	return builder.
		WithRoutes(func(router *gin.Engine) {
			SetupRoutes(router, handler, config.JWTSecret, gatherer)
		}).
		Build()
}
