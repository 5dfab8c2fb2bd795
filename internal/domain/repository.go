package domain

import (
	"context"
)

// MedicineRepository defines the interface for medicine persistence
type MedicineRepository interface {
	StockAdjuster

	// Create inserts a medicine, ErrDuplicateKey if the id is taken
	Create(ctx context.Context, medicine *Medicine) error

	// FindByID retrieves a medicine by its id
	FindByID(ctx context.Context, id string) (*Medicine, error)

	// FindAll retrieves medicines matching the filter, sorted by name
	FindAll(ctx context.Context, filter MedicineFilter) ([]*Medicine, error)

	// Update overwrites only the fields set in patch and returns the result
	Update(ctx context.Context, id string, patch MedicinePatch) (*Medicine, error)

	// Delete removes a medicine
	Delete(ctx context.Context, id string) error

	// CountLowStock counts medicines with stock at or below threshold
	CountLowStock(ctx context.Context, threshold int) (int64, error)
}

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// Create inserts an order, ErrDuplicateKey if the id is taken
	Create(ctx context.Context, order *Order) error

	// FindByID retrieves an order by its id
	FindByID(ctx context.Context, id string) (*Order, error)

	// FindAll retrieves all orders, newest first
	FindAll(ctx context.Context) ([]*Order, error)

	// FindByUserID retrieves the orders of a user, newest first
	FindByUserID(ctx context.Context, userID string) ([]*Order, error)

	// TransitionStatus saves order.Status only if the stored status is still
	// from. It returns ErrConcurrentStatusChange when another writer got there first.
	TransitionStatus(ctx context.Context, order *Order, from OrderStatus) (*Order, error)

	// UpdateNotes replaces the notes of an order
	UpdateNotes(ctx context.Context, id, notes string) (*Order, error)

	// Delete removes an order
	Delete(ctx context.Context, id string) error

	// CountByStatus counts orders per status
	CountByStatus(ctx context.Context) (StatusCounts, error)

	// SumUnits sums the total of orders in the given status
	SumUnits(ctx context.Context, status OrderStatus) (int64, error)
}
