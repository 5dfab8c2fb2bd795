package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/middleware"
)

// ReportHandlers contains handlers for dashboard reports
type ReportHandlers struct {
	service ReportService
	logger  *logging.Logger
}

// NewReportHandlers creates a new ReportHandlers
func NewReportHandlers(service ReportService, logger *logging.Logger) *ReportHandlers {
	return &ReportHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers report routes on the router
func (h *ReportHandlers) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/reports", middleware.RequireRole(h.logger.Logger, middleware.RoleAdmin))
	{
		reports.GET("/summary", h.Summary)
	}
}

// Summary handles the dashboard summary
func (h *ReportHandlers) Summary(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
