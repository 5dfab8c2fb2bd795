package application

import (
	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/cloudevents"
)

// ToMedicineDTO converts a domain Medicine to MedicineDTO
func ToMedicineDTO(med *domain.Medicine, lowStockThreshold int) *MedicineDTO {
	if med == nil {
		return nil
	}

	history := make([]StockHistoryDTO, 0, len(med.History))
	for _, entry := range med.History {
		history = append(history, StockHistoryDTO{
			ID:       entry.ID,
			Date:     entry.Date,
			Quantity: entry.Quantity,
			Type:     string(entry.Type),
			Note:     entry.Note,
		})
	}

	return &MedicineDTO{
		ID:          med.ID,
		Name:        med.Name,
		Category:    med.Category,
		Origin:      med.Origin,
		Stock:       med.Stock,
		VialName:    med.VialName,
		ExpDate:     med.ExpDate,
		History:     history,
		Image:       med.Image,
		Notes:       med.Notes,
		CreatedDate: med.CreatedDate,
		LowStock:    med.IsLowStock(lowStockThreshold),
		CreatedAt:   med.CreatedAt,
		UpdatedAt:   med.UpdatedAt,
	}
}

// ToOrderDTO converts a domain Order to OrderDTO
func ToOrderDTO(order *domain.Order) *OrderDTO {
	if order == nil {
		return nil
	}

	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ID:         item.ID,
			MedicineID: item.MedicineID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			Price:      item.Price,
		})
	}

	return &OrderDTO{
		ID:             order.ID,
		UserID:         order.UserID,
		UserName:       order.UserName,
		Items:          items,
		Status:         string(order.Status),
		Total:          order.Total,
		Notes:          order.Notes,
		OrderDate:      order.OrderDate,
		CompletionDate: order.CompletionDate,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}

// ToOrderDTOs converts a slice of orders
func ToOrderDTOs(orders []*domain.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(orders))
	for _, order := range orders {
		out = append(out, *ToOrderDTO(order))
	}
	return out
}

// ToAdjustmentDTO converts an AdjustmentResult
func ToAdjustmentDTO(result *domain.AdjustmentResult) AdjustmentDTO {
	items := make([]ItemAdjustmentDTO, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, ItemAdjustmentDTO{
			ItemID:        item.ItemID,
			MedicineID:    item.MedicineID,
			Quantity:      item.Quantity,
			Outcome:       string(item.Outcome),
			PreviousStock: item.PreviousStock,
			NewStock:      item.NewStock,
			Error:         item.Error,
		})
	}

	return AdjustmentDTO{
		From:      string(result.From),
		To:        string(result.To),
		Direction: string(result.Direction),
		Applied:   len(result.Applied()),
		Skipped:   len(result.Skipped()),
		Failed:    len(result.Failed()),
		Items:     items,
	}
}

func toMedicineEventData(med *domain.Medicine) cloudevents.MedicineData {
	return cloudevents.MedicineData{
		MedicineID: med.ID,
		Name:       med.Name,
		Category:   med.Category,
		Stock:      med.Stock,
	}
}

func toOrderCreatedData(order *domain.Order) cloudevents.OrderCreatedData {
	lines := make([]cloudevents.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, cloudevents.OrderLine{
			MedicineID: item.MedicineID,
			Name:       item.Name,
			Quantity:   item.Quantity,
		})
	}
	return cloudevents.OrderCreatedData{
		OrderID: order.ID,
		UserID:  order.UserID,
		Lines:   lines,
		Total:   order.Total,
	}
}
