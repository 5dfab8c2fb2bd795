package domain

import (
	"fmt"
	"strings"
)

// ValidateOrder checks an incoming order before it is admitted. It returns
// an *InvalidOrderError naming the first offending field.
func ValidateOrder(o *Order) error {
	if o == nil {
		return NewInvalidOrder("order", "Order is required")
	}
	if strings.TrimSpace(o.UserID) == "" {
		return NewInvalidOrder("userId", "User ID is required")
	}
	if len(o.Items) == 0 {
		return NewInvalidOrder("items", "Order must contain at least one item")
	}
	if o.Status != "" && !o.Status.IsValid() {
		return NewInvalidOrder("status", fmt.Sprintf("Invalid status %q", o.Status))
	}
	// Stock only moves on a transition into completed, so an order may not
	// be admitted already completed.
	if o.Status == StatusCompleted {
		return NewInvalidOrder("status", "Order cannot be created as completed")
	}

	for i, item := range o.Items {
		missing := func(field string) error {
			return NewInvalidOrder(
				fmt.Sprintf("items[%d].%s", i, field),
				fmt.Sprintf("Item at index %d is missing %s", i, field),
			)
		}
		switch {
		case strings.TrimSpace(item.ID) == "":
			return missing("id")
		case strings.TrimSpace(item.MedicineID) == "":
			return missing("medicineId")
		case strings.TrimSpace(item.Name) == "":
			return missing("name")
		}
		if item.Quantity <= 0 {
			return NewInvalidOrder(
				fmt.Sprintf("items[%d].quantity", i),
				fmt.Sprintf("Item %s has invalid quantity", item.Name),
			)
		}
	}
	return nil
}
