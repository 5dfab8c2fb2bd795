package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pharmacy-platform/pharmacy-service/internal/application"
	"github.com/pharmacy-platform/pharmacy-service/pkg/errors"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/middleware"
)

// MedicineHandlers contains handlers for inventory operations
type MedicineHandlers struct {
	service MedicineService
	logger  *logging.Logger
}

// NewMedicineHandlers creates a new MedicineHandlers
func NewMedicineHandlers(service MedicineService, logger *logging.Logger) *MedicineHandlers {
	return &MedicineHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers medicine routes on the router. Writes and the
// export require the admin role.
func (h *MedicineHandlers) RegisterRoutes(router *gin.RouterGroup) {
	adminOnly := middleware.RequireRole(h.logger.Logger, middleware.RoleAdmin)

	medicines := router.Group("/medicines")
	{
		medicines.GET("", h.ListMedicines)
		medicines.GET("/low-stock", h.ListLowStock)
		medicines.GET("/export", adminOnly, h.ExportInventory)
		medicines.GET("/:id", h.GetMedicine)
		medicines.POST("", adminOnly, h.CreateMedicine)
		medicines.PUT("/:id", adminOnly, h.UpdateMedicine)
		medicines.PATCH("/:id/stock", adminOnly, h.AdjustStock)
		medicines.DELETE("/:id", adminOnly, h.DeleteMedicine)
	}
}

// CreateMedicine handles medicine creation
func (h *MedicineHandlers) CreateMedicine(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		ID          string  `json:"id" binding:"trimmed_nonzero"`
		Name        string  `json:"name" binding:"trimmed_nonzero"`
		Category    string  `json:"category" binding:"trimmed_nonzero"`
		Origin      string  `json:"origin" binding:"trimmed_nonzero"`
		Stock       *int    `json:"stock" binding:"omitempty,gte=0"`
		VialName    string  `json:"vialName"`
		ExpDate     *string `json:"expDate"`
		Image       string  `json:"image"`
		Notes       string  `json:"notes"`
		CreatedDate string  `json:"createdDate"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	expDate, appErr := parseDate("expDate", req.ExpDate)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]string{
		"medicine.id": req.ID,
	})

	cmd := application.CreateMedicineCommand{
		ID:          strings.TrimSpace(req.ID),
		Name:        req.Name,
		Category:    req.Category,
		Origin:      req.Origin,
		VialName:    req.VialName,
		ExpDate:     expDate,
		Image:       req.Image,
		Notes:       req.Notes,
		CreatedDate: req.CreatedDate,
	}
	if req.Stock != nil {
		cmd.Stock = *req.Stock
	}

	medicine, err := h.service.CreateMedicine(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, medicine)
}

// GetMedicine handles getting a medicine by ID
func (h *MedicineHandlers) GetMedicine(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	medicineID := c.Param("id")
	middleware.AddSpanAttributes(c, map[string]string{
		"medicine.id": medicineID,
	})

	medicine, err := h.service.GetMedicine(c.Request.Context(), medicineID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, medicine)
}

// ListMedicines handles listing medicines, optionally filtered by category
// and a case-insensitive name search
func (h *MedicineHandlers) ListMedicines(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	query := application.ListMedicinesQuery{
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}

	medicines, err := h.service.ListMedicines(c.Request.Context(), query)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, medicines)
}

// ListLowStock handles listing medicines at or below a stock threshold
func (h *MedicineHandlers) ListLowStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var threshold *int
	if raw := c.Query("threshold"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			responder.RespondWithAppError(errors.ErrValidationWithFields("invalid query parameter", map[string]string{
				"threshold": "must be a non-negative integer",
			}))
			return
		}
		threshold = &value
	}

	medicines, err := h.service.ListLowStock(c.Request.Context(), threshold)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, medicines)
}

// UpdateMedicine handles a partial medicine update. Stock is not accepted
// here; it changes through AdjustStock so every change is recorded in the
// history.
func (h *MedicineHandlers) UpdateMedicine(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	medicineID := c.Param("id")
	middleware.AddSpanAttributes(c, map[string]string{
		"medicine.id": medicineID,
	})

	var req struct {
		Name        *string `json:"name"`
		Category    *string `json:"category"`
		Origin      *string `json:"origin"`
		Stock       *int    `json:"stock"`
		VialName    *string `json:"vialName"`
		ExpDate     *string `json:"expDate"`
		Image       *string `json:"image"`
		Notes       *string `json:"notes"`
		CreatedDate *string `json:"createdDate"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	if req.Stock != nil {
		responder.RespondWithAppError(errors.ErrValidationWithFields("stock cannot be set directly", map[string]string{
			"stock": fmt.Sprintf("use PATCH /api/v1/medicines/%s/stock", medicineID),
		}))
		return
	}

	expDate, appErr := parseDate("expDate", req.ExpDate)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	cmd := application.UpdateMedicineCommand{
		MedicineID:  medicineID,
		Name:        req.Name,
		Category:    req.Category,
		Origin:      req.Origin,
		VialName:    req.VialName,
		ExpDate:     expDate,
		Image:       req.Image,
		Notes:       req.Notes,
		CreatedDate: req.CreatedDate,
	}

	medicine, err := h.service.UpdateMedicine(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, medicine)
}

// AdjustStock handles a manual stock increase or decrease
func (h *MedicineHandlers) AdjustStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	medicineID := c.Param("id")

	var req struct {
		Quantity  *int   `json:"quantity" binding:"required,gte=0"`
		Direction string `json:"type" binding:"required,stock_direction"`
		Note      string `json:"note"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]string{
		"medicine.id":     medicineID,
		"stock.direction": req.Direction,
	})

	cmd := application.AdjustStockCommand{
		MedicineID: medicineID,
		Quantity:   *req.Quantity,
		Direction:  req.Direction,
		Note:       req.Note,
	}

	adjustment, err := h.service.AdjustStock(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, adjustment)
}

// DeleteMedicine handles medicine deletion
func (h *MedicineHandlers) DeleteMedicine(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	medicineID := c.Param("id")
	middleware.AddSpanAttributes(c, map[string]string{
		"medicine.id": medicineID,
	})

	if err := h.service.DeleteMedicine(c.Request.Context(), medicineID); err != nil {
		responder.RespondWithError(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ExportInventory handles the inventory workbook download
func (h *MedicineHandlers) ExportInventory(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	export, err := h.service.ExportInventory(c.Request.Context())
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName))
	c.Data(http.StatusOK, export.ContentType, export.Data)
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Nil and blank
// values yield nil.
func parseDate(field string, value *string) (*time.Time, *errors.AppError) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(*value)
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.ErrValidationWithFields("invalid date", map[string]string{
		field: "must be a date (YYYY-MM-DD) or an RFC 3339 timestamp",
	})
}
