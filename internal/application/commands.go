package application

import (
	"time"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
)

// CreateMedicineCommand represents the command to add a medicine
type CreateMedicineCommand struct {
	ID          string
	Name        string
	Category    string
	Origin      string
	Stock       int
	VialName    string
	ExpDate     *time.Time
	Image       string
	Notes       string
	CreatedDate string
}

// ToDomain builds the medicine aggregate
func (c CreateMedicineCommand) ToDomain() *domain.Medicine {
	return &domain.Medicine{
		ID:          c.ID,
		Name:        c.Name,
		Category:    c.Category,
		Origin:      c.Origin,
		Stock:       c.Stock,
		VialName:    c.VialName,
		ExpDate:     c.ExpDate,
		Image:       c.Image,
		Notes:       c.Notes,
		CreatedDate: c.CreatedDate,
	}
}

// UpdateMedicineCommand represents a partial medicine update. Nil fields are
// left untouched.
type UpdateMedicineCommand struct {
	MedicineID  string
	Name        *string
	Category    *string
	Origin      *string
	VialName    *string
	ExpDate     *time.Time
	Image       *string
	Notes       *string
	CreatedDate *string
}

// ToPatch converts the command into a domain patch
func (c UpdateMedicineCommand) ToPatch() domain.MedicinePatch {
	return domain.MedicinePatch{
		Name:        c.Name,
		Category:    c.Category,
		Origin:      c.Origin,
		VialName:    c.VialName,
		ExpDate:     c.ExpDate,
		Image:       c.Image,
		Notes:       c.Notes,
		CreatedDate: c.CreatedDate,
	}
}

// AdjustStockCommand represents a manual stock change
type AdjustStockCommand struct {
	MedicineID string
	Quantity   int
	Direction  string
	Note       string
}

// ToDelta converts the command into a domain delta
func (c AdjustStockCommand) ToDelta() domain.StockDelta {
	return domain.StockDelta{
		Quantity:  c.Quantity,
		Direction: domain.StockDirection(c.Direction),
		Note:      c.Note,
	}
}

// ListMedicinesQuery represents the query to list medicines
type ListMedicinesQuery struct {
	Category string
	Search   string
}

// CreateOrderCommand represents the command to place an order
type CreateOrderCommand struct {
	ID       string
	UserID   string
	UserName string
	Items    []OrderItemInput
	Status   string
	Notes    string
}

// OrderItemInput represents one line of a new order
type OrderItemInput struct {
	ID         string
	MedicineID string
	Name       string
	Quantity   int
	Price      float64
}

// ToDomain builds the order aggregate
func (c CreateOrderCommand) ToDomain() *domain.Order {
	items := make([]domain.OrderItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, domain.OrderItem{
			ID:         item.ID,
			MedicineID: item.MedicineID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			Price:      item.Price,
		})
	}
	return &domain.Order{
		ID:       c.ID,
		UserID:   c.UserID,
		UserName: c.UserName,
		Items:    items,
		Status:   domain.OrderStatus(c.Status),
		Notes:    c.Notes,
	}
}

// UpdateOrderStatusCommand represents a status change
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
}

// UpdateOrderNotesCommand represents a notes change
type UpdateOrderNotesCommand struct {
	OrderID string
	Notes   string
}
