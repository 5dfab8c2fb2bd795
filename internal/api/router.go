// Package api assembles the HTTP surface of the pharmacy service.
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/pharmacy-platform/pharmacy-service/internal/api/handlers"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
	"github.com/pharmacy-platform/pharmacy-service/pkg/middleware"
)

// RouterConfig holds what the router needs besides the services
type RouterConfig struct {
	ServiceName    string
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	EnableTracing  bool
	AllowedOrigins []string

	// Idempotency guards the mutating order routes when set
	Idempotency gin.HandlerFunc

	// ReadinessChecks back the /ready endpoint
	ReadinessChecks map[string]func(context.Context) error
}

// Services are the use cases exposed over HTTP
type Services struct {
	Medicines handlers.MedicineService
	Orders    handlers.OrderService
	Reports   handlers.ReportService
}

// NewRouter builds the gin engine with middleware, probes and the /api/v1
// routes
func NewRouter(config RouterConfig, services Services) *gin.Engine {
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(config.ServiceName, config.Logger.Logger)
	if len(config.AllowedOrigins) > 0 {
		middlewareConfig.AllowedOrigins = config.AllowedOrigins
	}
	middleware.Setup(router, middlewareConfig)

	if config.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(config.Metrics))
	}
	if config.EnableTracing {
		router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(config.ServiceName)))
	}
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Identify())

	router.GET("/health", middleware.HealthCheck(config.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(config.ServiceName, config.ReadinessChecks))
	if config.Metrics != nil {
		router.GET("/metrics", middleware.MetricsEndpoint(config.Metrics))
	}

	v1 := router.Group("/api/v1")
	handlers.NewMedicineHandlers(services.Medicines, config.Logger).RegisterRoutes(v1)
	handlers.NewOrderHandlers(services.Orders, config.Logger).
		WithIdempotency(config.Idempotency).
		RegisterRoutes(v1)
	handlers.NewReportHandlers(services.Reports, config.Logger).RegisterRoutes(v1)

	return router
}
