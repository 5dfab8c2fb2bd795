package handlers

import (
	"context"

	"github.com/pharmacy-platform/pharmacy-service/internal/application"
)

// MedicineService is the inventory use case surface used by MedicineHandlers
type MedicineService interface {
	CreateMedicine(ctx context.Context, cmd application.CreateMedicineCommand) (*application.MedicineDTO, error)
	GetMedicine(ctx context.Context, id string) (*application.MedicineDTO, error)
	ListMedicines(ctx context.Context, query application.ListMedicinesQuery) ([]application.MedicineDTO, error)
	ListLowStock(ctx context.Context, threshold *int) ([]application.MedicineDTO, error)
	UpdateMedicine(ctx context.Context, cmd application.UpdateMedicineCommand) (*application.MedicineDTO, error)
	AdjustStock(ctx context.Context, cmd application.AdjustStockCommand) (*application.StockAdjustmentDTO, error)
	DeleteMedicine(ctx context.Context, id string) error
	ExportInventory(ctx context.Context) (*application.InventoryExport, error)
}

// OrderService is the order use case surface used by OrderHandlers
type OrderService interface {
	CreateOrder(ctx context.Context, cmd application.CreateOrderCommand) (*application.OrderDTO, error)
	GetOrder(ctx context.Context, id string) (*application.OrderDTO, error)
	ListOrders(ctx context.Context) ([]application.OrderDTO, error)
	ListUserOrders(ctx context.Context, userID string) ([]application.OrderDTO, error)
	UpdateOrderStatus(ctx context.Context, cmd application.UpdateOrderStatusCommand) (*application.StatusChangeDTO, error)
	UpdateOrderNotes(ctx context.Context, cmd application.UpdateOrderNotesCommand) (*application.OrderDTO, error)
	DeleteOrder(ctx context.Context, id string) error
}

// ReportService builds dashboard reports
type ReportService interface {
	Summary(ctx context.Context) (*application.SummaryDTO, error)
}

var (
	_ MedicineService = (*application.MedicineApplicationService)(nil)
	_ OrderService    = (*application.OrderApplicationService)(nil)
	_ ReportService   = (*application.ReportApplicationService)(nil)
)
