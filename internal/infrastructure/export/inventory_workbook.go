package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
)

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	inventorySheet = "Inventory"
	historySheet   = "Stock History"
	dateLayout     = "2006-01-02"
)

var (
	inventoryHeadings = []string{"ID", "Name", "Category", "Origin", "Stock", "Unit", "Expiration", "Low Stock", "Notes"}
	historyHeadings   = []string{"Medicine ID", "Medicine", "Date", "Type", "Quantity", "Note"}
)

// InventoryWorkbook renders medicines as an xlsx report
type InventoryWorkbook struct {
	lowStockThreshold int
}

// NewInventoryWorkbook creates an exporter that flags stock at or below threshold
func NewInventoryWorkbook(lowStockThreshold int) *InventoryWorkbook {
	return &InventoryWorkbook{lowStockThreshold: lowStockThreshold}
}

// WriteInventory writes one inventory row per medicine and the full stock
// history of every medicine to w
func (e *InventoryWorkbook) WriteInventory(w io.Writer, medicines []*domain.Medicine, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", inventorySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(historySheet); err != nil {
		return err
	}

	if err := writeRow(f, inventorySheet, 1, toCells(inventoryHeadings)); err != nil {
		return err
	}
	if err := writeRow(f, historySheet, 1, toCells(historyHeadings)); err != nil {
		return err
	}

	historyRow := 2
	for i, med := range medicines {
		expiration := ""
		if med.ExpDate != nil {
			expiration = med.ExpDate.Format(dateLayout)
		}
		lowStock := "no"
		if med.IsLowStock(e.lowStockThreshold) {
			lowStock = "yes"
		}

		row := []interface{}{med.ID, med.Name, med.Category, med.Origin, med.Stock, med.VialName, expiration, lowStock, med.Notes}
		if err := writeRow(f, inventorySheet, i+2, row); err != nil {
			return err
		}

		for _, entry := range med.History {
			row := []interface{}{med.ID, med.Name, entry.Date.Format(time.RFC3339), string(entry.Type), entry.Quantity, entry.Note}
			if err := writeRow(f, historySheet, historyRow, row); err != nil {
				return err
			}
			historyRow++
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Pharmacy inventory",
		Created: generatedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	if err := f.SetPanes(inventorySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	return f.Write(w)
}

// ContentType returns the MIME type of the workbook
func (e *InventoryWorkbook) ContentType() string {
	return ContentType
}

// FileName returns the download name for a workbook generated at t
func (e *InventoryWorkbook) FileName(t time.Time) string {
	return fmt.Sprintf("inventory-%s.xlsx", t.UTC().Format("20060102-150405"))
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
