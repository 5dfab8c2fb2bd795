package application

import (
	"time"
)

// MedicineDTO represents a medicine in responses
type MedicineDTO struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Origin      string            `json:"origin"`
	Stock       int               `json:"stock"`
	VialName    string            `json:"vialName,omitempty"`
	ExpDate     *time.Time        `json:"expDate,omitempty"`
	History     []StockHistoryDTO `json:"history"`
	Image       string            `json:"image,omitempty"`
	Notes       string            `json:"notes"`
	CreatedDate string            `json:"createdDate,omitempty"`
	LowStock    bool              `json:"lowStock"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// StockHistoryDTO represents one stock history entry
type StockHistoryDTO struct {
	ID       string    `json:"id"`
	Date     time.Time `json:"date"`
	Quantity int       `json:"quantity"`
	Type     string    `json:"type"`
	Note     string    `json:"note"`
}

// StockAdjustmentDTO is the response to a manual stock change
type StockAdjustmentDTO struct {
	Medicine      MedicineDTO `json:"medicine"`
	PreviousStock int         `json:"previousStock"`
	Moved         int         `json:"moved"`
}

// OrderDTO represents an order in responses
type OrderDTO struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	UserName       string         `json:"userName"`
	Items          []OrderItemDTO `json:"items"`
	Status         string         `json:"status"`
	Total          int            `json:"total"`
	Notes          string         `json:"notes"`
	OrderDate      time.Time      `json:"orderDate"`
	CompletionDate *time.Time     `json:"completionDate"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// OrderItemDTO represents one order line
type OrderItemDTO struct {
	ID         string  `json:"id"`
	MedicineID string  `json:"medicineId"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

// StatusChangeDTO is the response to a status change. Adjustment lists the
// per-item stock outcomes; PartialFailure is set when any item was not applied.
type StatusChangeDTO struct {
	Order          OrderDTO      `json:"order"`
	Adjustment     AdjustmentDTO `json:"adjustment"`
	PartialFailure bool          `json:"partialFailure"`
}

// AdjustmentDTO summarises the stock side effects of a status change
type AdjustmentDTO struct {
	From      string              `json:"from"`
	To        string              `json:"to"`
	Direction string              `json:"direction,omitempty"`
	Applied   int                 `json:"applied"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Items     []ItemAdjustmentDTO `json:"items"`
}

// ItemAdjustmentDTO is the stock outcome of one order line
type ItemAdjustmentDTO struct {
	ItemID        string `json:"itemId"`
	MedicineID    string `json:"medicineId"`
	Quantity      int    `json:"quantity"`
	Outcome       string `json:"outcome"`
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
	Error         string `json:"error,omitempty"`
}

// InventoryExport is a rendered inventory report
type InventoryExport struct {
	FileName    string
	ContentType string
	Data        []byte
}

// SummaryDTO is the dashboard report
type SummaryDTO struct {
	TotalMedicines    int              `json:"totalMedicines"`
	TotalStock        int              `json:"totalStock"`
	LowStockMedicines int64            `json:"lowStockMedicines"`
	LowStockThreshold int              `json:"lowStockThreshold"`
	OrdersByStatus    map[string]int64 `json:"ordersByStatus"`
	TotalOrders       int64            `json:"totalOrders"`
	UnitsDispensed    int64            `json:"unitsDispensed"`
	GeneratedAt       time.Time        `json:"generatedAt"`
}
