// Package http wires the gin router: middleware, API routes and the
// operational endpoints.
package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/internal/infrastructure/monitoring"
	"github.com/presentio/presentio/internal/interfaces/http/handlers"
	"github.com/presentio/presentio/internal/interfaces/http/middleware"
	"github.com/presentio/presentio/pkg/logger"
)

// Handlers bundles the route handlers the router mounts.
type Handlers struct {
	Enrollment *handlers.EnrollmentHandler
	Template   *handlers.TemplateHandler
	Management *handlers.ManagementHandler
	Health     *handlers.HealthHandler
}

// NewRouter builds the gin engine. metrics may be nil.
func NewRouter(cfg *config.Config, h Handlers, metrics *monitoring.Metrics, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Observability(log, metrics))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Request-ID")
	router.Use(cors.New(corsCfg))

	// Operational endpoints, unauthenticated.
	router.GET("/healthz", h.Health.Live)
	router.GET("/readyz", h.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(router)

	api := router.Group("/api/v1")
	api.Use(middleware.TenantAuth(&cfg.JWT))
	{
		api.POST("/enrollments", h.Enrollment.Start)
		api.GET("/enrollments", h.Enrollment.List)
		api.GET("/enrollments/stream", h.Enrollment.Stream)
		api.POST("/enrollments/bulk", h.Enrollment.Bulk)
		api.GET("/enrollments/:id", h.Enrollment.Get)
		api.POST("/enrollments/:id/cancel", h.Enrollment.Cancel)

		api.GET("/templates", h.Template.List)
		api.POST("/templates/:id/transfer", h.Template.Transfer)

		api.POST("/students", h.Management.CreateStudent)
		api.GET("/students", h.Management.ListStudents)
		api.GET("/students/:id/templates", h.Template.ListByStudent)
		api.DELETE("/students/:id/templates", h.Template.RetireByStudent)

		api.POST("/devices", h.Management.CreateDevice)
		api.GET("/devices", h.Management.ListDevices)
		api.POST("/devices/:id/students", h.Management.SyncStudent)
	}

	return router
}
