package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Order)
		field  string
		reason string
	}{
		{
			name:   "missing user",
			mutate: func(o *Order) { o.UserID = "  " },
			field:  "userId",
			reason: "User ID is required",
		},
		{
			name:   "nil items",
			mutate: func(o *Order) { o.Items = nil },
			field:  "items",
			reason: "Order must contain at least one item",
		},
		{
			name:   "empty items",
			mutate: func(o *Order) { o.Items = []OrderItem{} },
			field:  "items",
			reason: "Order must contain at least one item",
		},
		{
			name:   "item missing id",
			mutate: func(o *Order) { o.Items[1].ID = "" },
			field:  "items[1].id",
			reason: "Item at index 1 is missing id",
		},
		{
			name:   "item missing medicine id",
			mutate: func(o *Order) { o.Items[0].MedicineID = "" },
			field:  "items[0].medicineId",
			reason: "Item at index 0 is missing medicineId",
		},
		{
			name:   "item missing name",
			mutate: func(o *Order) { o.Items[0].Name = "" },
			field:  "items[0].name",
			reason: "Item at index 0 is missing name",
		},
		{
			name:   "zero quantity",
			mutate: func(o *Order) { o.Items[0].Quantity = 0 },
			field:  "items[0].quantity",
			reason: "Item Amoxicillin has invalid quantity",
		},
		{
			name:   "negative quantity",
			mutate: func(o *Order) { o.Items[1].Quantity = -3 },
			field:  "items[1].quantity",
			reason: "Item Ibuprofen has invalid quantity",
		},
		{
			name:   "unknown status",
			mutate: func(o *Order) { o.Status = "shipped" },
			field:  "status",
		},
		{
			name:   "created completed",
			mutate: func(o *Order) { o.Status = StatusCompleted },
			field:  "status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := createTestOrder()
			tt.mutate(order)

			err := ValidateOrder(order)
			require.Error(t, err)

			invalid, ok := IsInvalidOrder(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, invalid.Field)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, invalid.Reason)
			}
		})
	}
}

func TestValidateOrder_Valid(t *testing.T) {
	order := createTestOrder()
	assert.NoError(t, ValidateOrder(order))

	order.Status = StatusProcessing
	assert.NoError(t, ValidateOrder(order))
}

func TestValidateOrder_Nil(t *testing.T) {
	_, ok := IsInvalidOrder(ValidateOrder(nil))
	assert.True(t, ok)
}
