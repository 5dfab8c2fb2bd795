package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pharmacy-platform/pharmacy-service/internal/application"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/middleware"
)

// OrderHandlers contains handlers for order operations
type OrderHandlers struct {
	service    OrderService
	logger     *logging.Logger
	idempotent gin.HandlerFunc
}

// NewOrderHandlers creates a new OrderHandlers
func NewOrderHandlers(service OrderService, logger *logging.Logger) *OrderHandlers {
	return &OrderHandlers{
		service:    service,
		logger:     logger,
		idempotent: func(c *gin.Context) { c.Next() },
	}
}

// WithIdempotency guards the mutating order routes with mw
func (h *OrderHandlers) WithIdempotency(mw gin.HandlerFunc) *OrderHandlers {
	if mw != nil {
		h.idempotent = mw
	}
	return h
}

// RegisterRoutes registers order routes on the router
func (h *OrderHandlers) RegisterRoutes(router *gin.RouterGroup) {
	adminOnly := middleware.RequireRole(h.logger.Logger, middleware.RoleAdmin)

	orders := router.Group("/orders")
	{
		orders.GET("", adminOnly, h.ListOrders)
		orders.GET("/user/:userId", middleware.RequireOwnerOrAdmin(h.logger.Logger, "userId"), h.ListUserOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("", h.idempotent, h.CreateOrder)
		orders.PATCH("/:id/status", adminOnly, h.idempotent, h.UpdateOrderStatus)
		orders.PATCH("/:id/notes", adminOnly, h.idempotent, h.UpdateOrderNotes)
		orders.DELETE("/:id", adminOnly, h.idempotent, h.DeleteOrder)
	}
}

type orderItemRequest struct {
	ID         string  `json:"id"`
	MedicineID string  `json:"medicineId"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

// CreateOrder handles order placement. Item rules are enforced by the order
// intake validator so the response names the offending field. Regular users
// can only place orders for themselves.
func (h *OrderHandlers) CreateOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req struct {
		ID       string             `json:"id"`
		UserID   string             `json:"userId"`
		UserName string             `json:"userName"`
		Items    []orderItemRequest `json:"items"`
		Status   string             `json:"status" binding:"omitempty,order_status"`
		Notes    string             `json:"notes"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	identity := middleware.GetIdentity(c)
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = identity.UserID
	}
	if !identity.IsAdmin() && identity.UserID != "" && userID != identity.UserID {
		responder.RespondForbidden("You can only place orders for yourself")
		return
	}

	cmd := application.CreateOrderCommand{
		ID:       strings.TrimSpace(req.ID),
		UserID:   userID,
		UserName: req.UserName,
		Items:    make([]application.OrderItemInput, 0, len(req.Items)),
		Status:   req.Status,
		Notes:    req.Notes,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, application.OrderItemInput{
			ID:         item.ID,
			MedicineID: item.MedicineID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			Price:      item.Price,
		})
	}

	order, err := h.service.CreateOrder(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	middleware.AddSpanAttributes(c, map[string]string{
		"order.id": order.ID,
	})

	c.JSON(http.StatusCreated, order)
}

// GetOrder handles getting an order by ID
func (h *OrderHandlers) GetOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	orderID := c.Param("id")
	middleware.AddSpanAttributes(c, map[string]string{
		"order.id": orderID,
	})

	order, err := h.service.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders handles listing every order
func (h *OrderHandlers) ListOrders(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	orders, err := h.service.ListOrders(c.Request.Context())
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

// ListUserOrders handles listing the orders of one user
func (h *OrderHandlers) ListUserOrders(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	orders, err := h.service.ListUserOrders(c.Request.Context(), c.Param("userId"))
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

// UpdateOrderStatus handles a status change. The response carries the
// stock adjustment outcome of every order line.
func (h *OrderHandlers) UpdateOrderStatus(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	orderID := c.Param("id")

	var req struct {
		Status string `json:"status" binding:"required,order_status"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]string{
		"order.id":     orderID,
		"order.status": req.Status,
	})

	change, err := h.service.UpdateOrderStatus(c.Request.Context(), application.UpdateOrderStatusCommand{
		OrderID: orderID,
		Status:  req.Status,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, change)
}

// UpdateOrderNotes handles replacing the notes of an order
func (h *OrderHandlers) UpdateOrderNotes(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	orderID := c.Param("id")

	var req struct {
		Notes *string `json:"notes" binding:"required"`
	}
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	order, err := h.service.UpdateOrderNotes(c.Request.Context(), application.UpdateOrderNotesCommand{
		OrderID: orderID,
		Notes:   *req.Notes,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// DeleteOrder handles order deletion. Stock is not touched.
func (h *OrderHandlers) DeleteOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	orderID := c.Param("id")
	middleware.AddSpanAttributes(c, map[string]string{
		"order.id": orderID,
	})

	if err := h.service.DeleteOrder(c.Request.Context(), orderID); err != nil {
		responder.RespondWithError(err)
		return
	}

	c.Status(http.StatusNoContent)
}
