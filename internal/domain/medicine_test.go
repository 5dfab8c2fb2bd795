package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStock(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		historyLen int
		quantity   int
		direction  StockDirection
		expected   int
	}{
		{"increase adds", 10, 1, 5, StockIncrease, 15},
		{"decrease subtracts", 10, 1, 4, StockDecrease, 6},
		{"decrease to exactly zero", 10, 3, 10, StockDecrease, 0},
		{"decrease clamps at zero", 3, 1, 50, StockDecrease, 0},
		{"decrease from zero stays zero", 0, 2, 1, StockDecrease, 0},
		{"empty history zero quantity keeps stock", 7, 0, 0, StockDecrease, 7},
		{"empty history zero quantity increase keeps stock", 7, 0, 0, StockIncrease, 7},
		{"empty history non-zero quantity applies", 7, 0, 2, StockDecrease, 5},
		{"non-empty history zero quantity is a no-op", 7, 1, 0, StockIncrease, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextStock(tt.current, tt.historyLen, tt.quantity, tt.direction))
		})
	}
}

func TestNextStock_NeverNegative(t *testing.T) {
	for current := 0; current <= 20; current++ {
		for quantity := 0; quantity <= 40; quantity++ {
			for _, historyLen := range []int{0, 1, 5} {
				got := NextStock(current, historyLen, quantity, StockDecrease)
				assert.GreaterOrEqual(t, got, 0, "current=%d quantity=%d", current, quantity)
			}
		}
	}
}

func TestMedicine_ApplyStockEntry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	med := &Medicine{ID: "med-1", Stock: 2, History: []StockHistoryEntry{}}

	first := StockDelta{Quantity: 0, Direction: StockIncrease}.NewEntry(now)
	med.ApplyStockEntry(first)
	assert.Equal(t, 2, med.Stock)
	require.Len(t, med.History, 1)

	second := StockDelta{Quantity: 5, Direction: StockDecrease, Note: "broken vials"}.NewEntry(now.Add(time.Minute))
	med.ApplyStockEntry(second)

	assert.Equal(t, 0, med.Stock)
	require.Len(t, med.History, 2)
	assert.Equal(t, second.ID, med.History[0].ID, "newest entry first")
	assert.Equal(t, first.ID, med.History[1].ID)
	assert.Equal(t, 5, med.History[0].Quantity, "history records the requested quantity")
	assert.Equal(t, StockDecrease, med.History[0].Type)
	assert.Equal(t, "broken vials", med.History[0].Note)
	assert.Equal(t, now.Add(time.Minute), med.UpdatedAt)
}

func TestStockDelta(t *testing.T) {
	t.Run("default notes", func(t *testing.T) {
		now := time.Now()
		assert.Equal(t, "Stock added", StockDelta{Quantity: 1, Direction: StockIncrease}.NewEntry(now).Note)
		assert.Equal(t, "Stock removed", StockDelta{Quantity: 1, Direction: StockDecrease, Note: "  "}.NewEntry(now).Note)
	})

	t.Run("entry ids are unique", func(t *testing.T) {
		now := time.Now()
		a := StockDelta{Quantity: 1, Direction: StockIncrease}.NewEntry(now)
		b := StockDelta{Quantity: 1, Direction: StockIncrease}.NewEntry(now)
		assert.NotEqual(t, a.ID, b.ID)
		assert.Contains(t, a.ID, "hist-")
	})

	t.Run("validate", func(t *testing.T) {
		assert.NoError(t, StockDelta{Quantity: 0, Direction: StockDecrease}.Validate())
		assert.ErrorIs(t, StockDelta{Quantity: -1, Direction: StockDecrease}.Validate(), ErrNegativeQuantity)
		assert.ErrorIs(t, StockDelta{Quantity: 1, Direction: "sideways"}.Validate(), ErrInvalidDirection)
	})
}

func TestMedicine_Validate(t *testing.T) {
	valid := func() *Medicine {
		return &Medicine{ID: "med-1", Name: "Amoxicillin", Category: "Antibiotic", Origin: "DE"}
	}

	assert.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(m *Medicine)
		field  string
	}{
		{"missing id", func(m *Medicine) { m.ID = " " }, "id"},
		{"missing name", func(m *Medicine) { m.Name = "" }, "name"},
		{"missing category", func(m *Medicine) { m.Category = "" }, "category"},
		{"missing origin", func(m *Medicine) { m.Origin = "" }, "origin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)
			err := m.Validate()
			require.ErrorIs(t, err, ErrMissingField)
			var missing *MissingFieldError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tt.field, missing.Field)
		})
	}

	m := valid()
	m.Stock = -1
	assert.ErrorIs(t, m.Validate(), ErrNegativeQuantity)
}

func TestMedicinePatch_Apply(t *testing.T) {
	med := &Medicine{
		ID: "med-1", Name: "Ibuprofen", Category: "Analgesic", Origin: "FR",
		Stock: 12, Notes: "shelf A", VialName: "box",
	}
	name := "Ibuprofen 400"
	notes := ""

	patch := MedicinePatch{Name: &name, Notes: &notes}
	require.NoError(t, patch.Validate())
	patch.Apply(med)

	assert.Equal(t, "Ibuprofen 400", med.Name)
	assert.Equal(t, "", med.Notes)
	assert.Equal(t, "Analgesic", med.Category, "omitted fields keep their value")
	assert.Equal(t, "box", med.VialName)
	assert.Equal(t, 12, med.Stock, "patches never touch stock")
}

func TestMedicinePatch_Validate(t *testing.T) {
	blank := "  "
	assert.ErrorIs(t, MedicinePatch{Category: &blank}.Validate(), ErrMissingField)
	assert.True(t, MedicinePatch{}.IsEmpty())
	assert.False(t, MedicinePatch{Notes: &blank}.IsEmpty())
}

func TestMedicineFilter_Matches(t *testing.T) {
	med := &Medicine{Name: "Paracetamol", Category: "Analgesic", Stock: 4}
	five, three := 5, 3

	assert.True(t, MedicineFilter{}.Matches(med))
	assert.True(t, MedicineFilter{Search: "CETA"}.Matches(med))
	assert.False(t, MedicineFilter{Search: "ibu"}.Matches(med))
	assert.True(t, MedicineFilter{Category: "Analgesic"}.Matches(med))
	assert.False(t, MedicineFilter{Category: "Antibiotic"}.Matches(med))
	assert.True(t, MedicineFilter{MaxStock: &five}.Matches(med))
	assert.False(t, MedicineFilter{MaxStock: &three}.Matches(med))
}

func TestStockChange_Moved(t *testing.T) {
	change := &StockChange{Medicine: &Medicine{Stock: 0}, PreviousStock: 3}
	assert.Equal(t, 3, change.Moved())

	change = &StockChange{Medicine: &Medicine{Stock: 9}, PreviousStock: 4}
	assert.Equal(t, 5, change.Moved())
}
