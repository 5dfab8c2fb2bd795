package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus represents order status
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// AllStatuses lists every order status in workflow order
var AllStatuses = []OrderStatus{StatusPending, StatusProcessing, StatusCompleted, StatusCancelled}

// IsValid checks if the status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Order is a request for a set of medicines. ID is the only lookup key
// clients use; OrderID mirrors it for the legacy sparse unique index.
type Order struct {
	InternalID     primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ID             string             `bson:"id" json:"id"`
	OrderID        string             `bson:"orderId" json:"-"`
	UserID         string             `bson:"userId" json:"userId"`
	UserName       string             `bson:"userName" json:"userName"`
	Items          []OrderItem        `bson:"items" json:"items"`
	Status         OrderStatus        `bson:"status" json:"status"`
	Total          int                `bson:"total" json:"total"`
	Notes          string             `bson:"notes" json:"notes"`
	OrderDate      time.Time          `bson:"orderDate" json:"orderDate"`
	CompletionDate *time.Time         `bson:"completionDate" json:"completionDate"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// OrderItem is one line of an order. MedicineID is not enforced against the
// medicine store and Name is a snapshot taken when the order was placed.
type OrderItem struct {
	ID         string  `bson:"id" json:"id"`
	MedicineID string  `bson:"medicineId" json:"medicineId"`
	Name       string  `bson:"name" json:"name"`
	Quantity   int     `bson:"quantity" json:"quantity"`
	Price      float64 `bson:"price" json:"price"`
}

// GenerateOrderID returns a time based order id
func GenerateOrderID(now time.Time) string {
	return fmt.Sprintf("ORD%d%03d", now.UnixMilli(), rand.IntN(1000))
}

// RecomputeTotal sets Total to the sum of item quantities
func (o *Order) RecomputeTotal() {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	o.Total = total
}

// PrepareForSave keeps the derived fields consistent. Call before every write.
func (o *Order) PrepareForSave(now time.Time) {
	o.RecomputeTotal()
	o.OrderID = o.ID
	o.UpdatedAt = now
}

// PrepareForCreate assigns the id, default status and dates of a new order
func (o *Order) PrepareForCreate(now time.Time) {
	o.ID = strings.TrimSpace(o.ID)
	if o.ID == "" {
		o.ID = GenerateOrderID(now)
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = now
	}
	o.CompletionDate = nil
	o.CreatedAt = now
	o.PrepareForSave(now)
}

// TransitionTo moves the order to status. Entering completed stamps the
// completion date; leaving it keeps the date of the last completion.
func (o *Order) TransitionTo(status OrderStatus, now time.Time) {
	if status == StatusCompleted && o.Status != StatusCompleted {
		o.CompletionDate = &now
	}
	o.Status = status
	o.PrepareForSave(now)
}

// BelongsTo compares the owner using trimmed string equality
func (o *Order) BelongsTo(userID string) bool {
	return strings.TrimSpace(o.UserID) == strings.TrimSpace(userID)
}

// StockEffect returns the stock direction a status transition causes, or
// false when the transition leaves stock alone.
func StockEffect(from, to OrderStatus) (StockDirection, bool) {
	switch {
	case from == to:
		return "", false
	case to == StatusCompleted:
		return StockDecrease, true
	case from == StatusCompleted && to == StatusCancelled:
		return StockIncrease, true
	default:
		return "", false
	}
}

// StatusCounts maps each status to the number of orders in it
type StatusCounts map[OrderStatus]int64

// Total returns the number of orders across all statuses
func (c StatusCounts) Total() int64 {
	var total int64
	for _, n := range c {
		total += n
	}
	return total
}
