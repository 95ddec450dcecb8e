// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"alma/internal/domain/eav"
	"alma/internal/infrastructure/http/v1/handlers"
	"alma/internal/infrastructure/http/v1/middleware"
	"alma/internal/infrastructure/storage/postgres"
	"alma/pkg/logger"
)

// RouterConfig holds the dependencies of the HTTP API.
type RouterConfig struct {
	Pool    *pgxpool.Pool
	Logger  *logger.Logger
	Service *eav.Service
	Audit   *postgres.AuditService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Order matters: recovery outermost, then tracing before logging.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	router.GET("/healthz", healthHandler.Liveness)
	router.GET("/readyz", healthHandler.Readiness)

	attrs := handlers.NewAttributesHandler(cfg.Service, cfg.Audit)

	api := router.Group("/api/v1")
	{
		api.GET("/entity-types", attrs.ListEntityTypes)
		api.GET("/entity-types/:type/attributes", attrs.ListDefinitions)

		entities := api.Group("/entities/:type/:id")
		{
			entities.GET("/attributes", attrs.GetAttributes)
			entities.GET("/attributes/details", attrs.GetAttributeDetails)
			entities.POST("/attributes", attrs.BulkSetAttributes)
			entities.PUT("/attributes/:name", attrs.SetAttribute)
			entities.DELETE("/attributes/:name", attrs.DeleteAttribute)
			entities.GET("/audit", attrs.GetAuditHistory)
		}
	}

	return router
}
