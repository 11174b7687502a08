package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	infragin "github.com/jonesrussell/north-cloud/index-guard/infrastructure/gin"
)

// SetupRoutes configures all API routes. /health is registered by the
// infrastructure gin builder.
func SetupRoutes(router *gin.Engine, handler *Handler, jwtSecret string, gatherer prometheus.Gatherer) {
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := infragin.ProtectedGroup(router, "/api/v1", jwtSecret)

	migrations := v1.Group("/migrations")
	migrations.POST("", handler.StartMigration)                // POST /api/v1/migrations
	migrations.GET("", handler.ListMigrations)                 // GET /api/v1/migrations
	migrations.GET("/:id", handler.GetMigration)               // GET /api/v1/migrations/:id
	migrations.POST("/:id/rollback", handler.RollbackMigration) // POST /api/v1/migrations/:id/rollback

	v1.GET("/health/indexes/:index", handler.GetIndexHealth) // GET /api/v1/health/indexes/:index
	v1.GET("/resilience", handler.GetResilience)             // GET /api/v1/resilience

	if handler.events != nil {
		v1.GET("/events", handler.StreamEvents) // GET /api/v1/events
	}
}
