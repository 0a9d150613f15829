// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optiledger/internal/core/tenant"
	"optiledger/internal/core/tx"
	"optiledger/internal/domain/numbering"
	"optiledger/internal/infrastructure/http/v1/handlers"
	"optiledger/internal/infrastructure/http/v1/middleware"
	"optiledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Registry resolves tenants from X-Tenant-ID
	Registry tenant.Registry

	// TxManager is injected into request context for transactional work
	TxManager tx.Manager

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Numbering serves preview, issue, commit, diagnose and repair
	Numbering *numbering.Service

	// HealthChecks are run by /health/ready
	HealthChecks map[string]handlers.Check

	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer

	// Idempotency makes issue and commit retries safe; nil disables X-Idempotency-Key handling
	Idempotency middleware.IdempotencyStore
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth, no tenant required)
	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		// Tenant first: Auth checks the token's tenant against it.
		protected.Use(middleware.Tenant(cfg.Registry, cfg.TxManager))
		protected.Use(middleware.Auth(cfg.JWTValidator))

		registerNumberingRoutes(protected, cfg)
	}

	return router
}

// registerNumberingRoutes registers numbering endpoints.
func registerNumberingRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Numbering == nil {
		return
	}

	handler := handlers.NewNumberingHandler(handlers.NewBaseHandler(), cfg.Numbering)

	admin := rg.Group("/admin/numbering")
	admin.Use(middleware.RequireAdmin())

	var advance []gin.HandlerFunc
	if cfg.Idempotency != nil {
		advance = append(advance, middleware.Idempotency(cfg.Idempotency))
	}

	handler.RegisterRoutes(rg.Group("/numbering"), admin, advance...)
}
