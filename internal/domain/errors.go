package domain

import (
	"errors"
	"fmt"
)

// Errors returned by the record stores
var (
	ErrMedicineNotFound       = errors.New("medicine not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrDuplicateKey           = errors.New("duplicate key")
	ErrConcurrentStatusChange = errors.New("order status changed concurrently")
	ErrOrderLocked            = errors.New("order is being updated by another request")
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrInvalidDirection       = errors.New("invalid stock direction")
	ErrNegativeQuantity       = errors.New("quantity must be a non-negative number")
	ErrMissingField           = errors.New("missing required field")
)

// InvalidOrderError describes why an order submission was rejected
type InvalidOrderError struct {
	Field  string
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: %s", e.Reason)
}

// NewInvalidOrder creates an InvalidOrderError
func NewInvalidOrder(field, reason string) *InvalidOrderError {
	return &InvalidOrderError{Field: field, Reason: reason}
}

// IsInvalidOrder reports whether err is an InvalidOrderError and returns it
func IsInvalidOrder(err error) (*InvalidOrderError, bool) {
	var invalid *InvalidOrderError
	if errors.As(err, &invalid) {
		return invalid, true
	}
	return nil, false
}

// PartialAdjustmentFailure reports order items whose stock could not be
// adjusted during a status transition. It is informational: the transition
// itself has already been saved.
type PartialAdjustmentFailure struct {
	OrderID string
	Items   []ItemAdjustment
}

func (e *PartialAdjustmentFailure) Error() string {
	return fmt.Sprintf("order %s: stock adjustment failed for %d item(s)", e.OrderID, len(e.Items))
}
