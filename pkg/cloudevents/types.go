package cloudevents

import (
	"time"
)

// Event types emitted by the pharmacy service
const (
	MedicineCreated       = "pharmacy.medicine.created"
	MedicineUpdated       = "pharmacy.medicine.updated"
	MedicineDeleted       = "pharmacy.medicine.deleted"
	MedicineStockAdjusted = "pharmacy.medicine.stock-adjusted"

	OrderCreated       = "pharmacy.order.created"
	OrderStatusChanged = "pharmacy.order.status-changed"
	OrderNotesUpdated  = "pharmacy.order.notes-updated"
	OrderDeleted       = "pharmacy.order.deleted"
)

// Event sources
const (
	SourceInventory = "/pharmacy/inventory"
	SourceOrders    = "/pharmacy/orders"
)

// Extension attribute names carried as Kafka headers
const (
	ExtCorrelationID = "pharmacycorrelationid"
	ExtUserID        = "pharmacyuserid"
)

// PharmacyCloudEvent is a CloudEvents v1.0 envelope
type PharmacyCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	CorrelationID string `json:"pharmacycorrelationid,omitempty"`
	UserID        string `json:"pharmacyuserid,omitempty"`
}

// MedicineData is the payload of medicine lifecycle events
type MedicineData struct {
	MedicineID string `json:"medicineId"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Stock      int    `json:"stock"`
}

// StockAdjustedData is the payload of MedicineStockAdjusted
type StockAdjustedData struct {
	MedicineID  string `json:"medicineId"`
	Direction   string `json:"direction"`
	Requested   int    `json:"requestedQuantity"`
	PreviousQty int    `json:"previousStock"`
	NewQty      int    `json:"newStock"`
	Note        string `json:"note"`
	OrderID     string `json:"orderId,omitempty"`
}

// OrderLine is one item of an order event
type OrderLine struct {
	MedicineID string `json:"medicineId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
}

// OrderCreatedData is the payload of OrderCreated
type OrderCreatedData struct {
	OrderID string      `json:"orderId"`
	UserID  string      `json:"userId"`
	Lines   []OrderLine `json:"lines"`
	Total   int         `json:"total"`
}

// OrderStatusChangedData is the payload of OrderStatusChanged
type OrderStatusChangedData struct {
	OrderID        string `json:"orderId"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
	Applied        int    `json:"itemsApplied"`
	Skipped        int    `json:"itemsSkipped"`
	Failed         int    `json:"itemsFailed"`
}

// OrderData is the payload of the remaining order events
type OrderData struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Status  string `json:"status"`
}
