package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/migration"
	"github.com/jonesrussell/north-cloud/index-guard/internal/resilience"
)

// MigrationService is the migration control surface.
type MigrationService interface {
	Start(ctx context.Context, req migration.StartRequest) (string, error)
	Progress(ctx context.Context, id string) (domain.MigrationRun, error)
	Rollback(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.MigrationRun, error)
}

// HealthService scores an index on demand.
type HealthService interface {
	Check(ctx context.Context, index string) domain.HealthCheckResult
}

// ResilienceService reports breaker and bulkhead state.
type ResilienceService interface {
	Snapshot() resilience.Snapshot
}

// Handler handles HTTP requests for the index guard API
type Handler struct {
	migrations MigrationService
	health     HealthService
	resilience ResilienceService
	events     sse.Subscriber
	logger     logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(migrations MigrationService, health HealthService, res ResilienceService, log logger.Logger) *Handler {
	return &Handler{
		migrations: migrations,
		health:     health,
		resilience: res,
		logger:     log,
	}
}

// WithEvents enables the event stream endpoint.
func (h *Handler) WithEvents(events sse.Subscriber) *Handler {
	h.events = events
	return h
}

// StartMigrationResponse is returned by POST /api/v1/migrations.
type StartMigrationResponse struct {
	RunID string `json:"run_id"`
}

// StartMigration handles POST /api/v1/migrations
func (h *Handler) StartMigration(c *gin.Context) {
	log := h.requestLogger(c)

	var req migration.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid start migration request", logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Info("Starting migration",
		logger.String("alias", req.SourceAlias),
		logger.String("source_index", req.SourceIndex),
		logger.String("target_index", req.TargetIndex),
		logger.String("requested_by", jwt.Subject(c)),
	)

	runID, err := h.migrations.Start(c.Request.Context(), req)
	if err != nil {
		log.Warn("Migration not started", logger.String("alias", req.SourceAlias), logger.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, StartMigrationResponse{RunID: runID})
}

// ListMigrations handles GET /api/v1/migrations
func (h *Handler) ListMigrations(c *gin.Context) {
	runs, err := h.migrations.List(c.Request.Context())
	if err != nil {
		h.requestLogger(c).Error("Failed to list migrations", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"migrations": runs,
		"count":      len(runs),
	})
}

// GetMigration handles GET /api/v1/migrations/:id
func (h *Handler) GetMigration(c *gin.Context) {
	id := c.Param("id")

	run, err := h.migrations.Progress(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, migration.ErrRunNotFound) {
			h.requestLogger(c).Error("Failed to get migration", logger.String("run_id", id), logger.Error(err))
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, run)
}

// RollbackMigration handles POST /api/v1/migrations/:id/rollback
func (h *Handler) RollbackMigration(c *gin.Context) {
	id := c.Param("id")
	log := h.requestLogger(c)

	log.Info("Rollback requested",
		logger.String("run_id", id),
		logger.String("requested_by", jwt.Subject(c)),
	)

	if err := h.migrations.Rollback(c.Request.Context(), id); err != nil {
		log.Warn("Rollback refused", logger.String("run_id", id), logger.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": id, "status": "rollback requested"})
}

// GetIndexHealth handles GET /api/v1/health/indexes/:index
func (h *Handler) GetIndexHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.Check(c.Request.Context(), c.Param("index")))
}

// GetResilience handles GET /api/v1/resilience
func (h *Handler) GetResilience(c *gin.Context) {
	c.JSON(http.StatusOK, h.resilience.Snapshot())
}

// StreamEvents handles GET /api/v1/events. Optional query parameters narrow
// the stream: run_id to one migration, type (repeatable) to event types.
func (h *Handler) StreamEvents(c *gin.Context) {
	var opts []sse.ClientOption
	if runID := c.Query("run_id"); runID != "" {
		opts = append(opts, sse.WithRunFilter(runID))
	}
	if types := c.QueryArray("type"); len(types) > 0 {
		opts = append(opts, sse.WithTypes(types...))
	}
	sse.Handler(h.events, h.requestLogger(c), opts...)(c)
}

func (h *Handler) requestLogger(c *gin.Context) logger.Logger {
	return logger.FromContextOr(c.Request.Context(), h.logger)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, migration.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, migration.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, migration.ErrMigrationInProgress), errors.Is(err, migration.ErrRunCompleted),
		errors.Is(err, migration.ErrAliasMoved):
		return http.StatusConflict
	case errors.Is(err, migration.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
