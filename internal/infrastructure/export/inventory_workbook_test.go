package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
)

func TestInventoryWorkbook_WriteInventory(t *testing.T) {
	exp := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	medicines := []*domain.Medicine{
		{
			ID: "med-1", Name: "Amoxicillin", Category: "Antibiotic", Origin: "DE", Stock: 2,
			VialName: "box", ExpDate: &exp,
			History: []domain.StockHistoryEntry{
				{ID: "h2", Date: exp, Quantity: 3, Type: domain.StockDecrease, Note: "Order #ORD1 completed"},
				{ID: "h1", Date: exp, Quantity: 5, Type: domain.StockIncrease, Note: "Stock added"},
			},
		},
		{ID: "med-2", Name: "Ibuprofen", Category: "Analgesic", Origin: "FR", Stock: 40},
	}

	var buf bytes.Buffer
	workbook := NewInventoryWorkbook(5)
	require.NoError(t, workbook.WriteInventory(&buf, medicines, time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(inventorySheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, inventoryHeadings, rows[0])
	assert.Equal(t, []string{"med-1", "Amoxicillin", "Antibiotic", "DE", "2", "box", "2025-01-31", "yes"}, rows[1])
	assert.Equal(t, "no", rows[2][7])

	history, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "decrease", history[1][3])
	assert.Equal(t, "3", history[1][4])
	assert.Equal(t, "Order #ORD1 completed", history[1][5])
	assert.Equal(t, "increase", history[2][3])
}

func TestInventoryWorkbook_FileName(t *testing.T) {
	name := NewInventoryWorkbook(5).FileName(time.Date(2024, 7, 9, 14, 3, 5, 0, time.UTC))
	assert.Equal(t, "inventory-20240709-140305.xlsx", name)
}
