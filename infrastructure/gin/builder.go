package gin

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
)

// ServerBuilder provides a fluent API for building HTTP servers.
type ServerBuilder struct {
	config       *Config
	logger       logger.Logger
	setupRoutes  func(*gin.Engine)
	middleware   []gin.HandlerFunc
	healthChecks map[string]HealthChecker
}

// NewServerBuilder creates a new server builder with the given configuration.
func NewServerBuilder(serviceName string, port int) *ServerBuilder {
	return &ServerBuilder{
		config:       NewConfig(serviceName, port),
		healthChecks: make(map[string]HealthChecker),
	}
}

// WithLogger sets the logger.
func (b *ServerBuilder) WithLogger(log logger.Logger) *ServerBuilder {
	b.logger = log
	return b
}

// WithDebug enables or disables debug mode.
func (b *ServerBuilder) WithDebug(debug bool) *ServerBuilder {
	b.config.Debug = debug
	return b
}

// WithVersion sets the service version.
func (b *ServerBuilder) WithVersion(version string) *ServerBuilder {
	b.config.ServiceVersion = version
	return b
}

// WithCORSOrigins sets allowed CORS origins.
func (b *ServerBuilder) WithCORSOrigins(origins []string) *ServerBuilder {
	if len(origins) > 0 {
		b.config.CORS.AllowedOrigins = origins
	}
	return b
}

// WithTimeouts sets all timeout values for the HTTP server.
func (b *ServerBuilder) WithTimeouts(read, write, idle time.Duration) *ServerBuilder {
	b.config.ReadTimeout = read
	b.config.WriteTimeout = write
	b.config.IdleTimeout = idle
	return b
}

// WithMiddleware appends middleware that runs after the standard chain.
func (b *ServerBuilder) WithMiddleware(mw ...gin.HandlerFunc) *ServerBuilder {
	b.middleware = append(b.middleware, mw...)
	return b
}

// WithHealthCheck adds a named health check.
func (b *ServerBuilder) WithHealthCheck(name string, checker HealthChecker) *ServerBuilder {
	b.healthChecks[name] = checker
	return b
}

// WithDatabaseHealthCheck adds a database health check. A failing database
// reports degraded, not unhealthy.
func (b *ServerBuilder) WithDatabaseHealthCheck(ping func(context.Context) error) *ServerBuilder {
	b.healthChecks["database"] = PingHealthChecker("Database", HealthStatusDegraded, ping)
	return b
}

// WithRedisHealthCheck adds a Redis health check. A failing Redis reports
// degraded.
func (b *ServerBuilder) WithRedisHealthCheck(ping func(context.Context) error) *ServerBuilder {
	b.healthChecks["redis"] = PingHealthChecker("Redis", HealthStatusDegraded, ping)
	return b
}

// WithElasticsearchHealthCheck adds an Elasticsearch health check. The
// service is unhealthy without its backend.
func (b *ServerBuilder) WithElasticsearchHealthCheck(ping func(context.Context) error) *ServerBuilder {
	b.healthChecks["elasticsearch"] = PingHealthChecker("Elasticsearch", HealthStatusUnhealthy, ping)
	return b
}

// WithRoutes sets the route setup function.
func (b *ServerBuilder) WithRoutes(setupRoutes func(*gin.Engine)) *ServerBuilder {
	b.setupRoutes = setupRoutes
	return b
}

// Build creates the server with all configured options.
func (b *ServerBuilder) Build() *Server {
	// Ensure we have a logger
	if b.logger == nil {
		b.logger = logger.Must(logger.Config{Level: "info", Development: b.config.Debug})
	}

	// Wrap the service routes with extra middleware and the health routes
	wrappedSetup := func(router *gin.Engine) {
		// Extra middleware (metrics) runs inside the standard chain
		for _, mw := range b.middleware {
			router.Use(mw)
		}

		// Health routes stay outside the JWT-protected groups
		RegisterHealthRoutes(router, HealthOptions{
			ServiceName:    b.config.ServiceName,
			ServiceVersion: b.config.ServiceVersion,
			Checks:         b.healthChecks,
		})

		// Call service-specific route setup
		if b.setupRoutes != nil {
			b.setupRoutes(router)
		}
	}

	return NewServer(b.config, b.logger, wrappedSetup)
}

// ProtectedGroup creates a router group with JWT authentication middleware.
// An empty secret leaves the group open.
func ProtectedGroup(router *gin.Engine, path, jwtSecret string) *gin.RouterGroup {
	group := router.Group(path)
	if jwtSecret != "" {
		group.Use(jwt.Middleware(jwtSecret))
	}
	return group
}
