package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ItemOutcome is the result of adjusting stock for one order item
type ItemOutcome string

const (
	ItemApplied        ItemOutcome = "applied"
	ItemSkippedMissing ItemOutcome = "skipped_missing"
	ItemFailed         ItemOutcome = "failed"
)

// ItemAdjustment records what happened to one order item during a transition
type ItemAdjustment struct {
	ItemID        string         `json:"itemId"`
	MedicineID    string         `json:"medicineId"`
	Quantity      int            `json:"quantity"`
	Direction     StockDirection `json:"direction"`
	Outcome       ItemOutcome    `json:"outcome"`
	PreviousStock int            `json:"previousStock"`
	NewStock      int            `json:"newStock"`
	Error         string         `json:"error,omitempty"`
}

// AdjustmentResult lists the per-item outcomes of a status transition
type AdjustmentResult struct {
	OrderID   string           `json:"orderId"`
	From      OrderStatus      `json:"from"`
	To        OrderStatus      `json:"to"`
	Direction StockDirection   `json:"direction,omitempty"`
	Items     []ItemAdjustment `json:"items"`
}

// Applied returns the items whose stock was adjusted
func (r *AdjustmentResult) Applied() []ItemAdjustment {
	return r.filter(ItemApplied)
}

// Skipped returns the items whose medicine no longer exists
func (r *AdjustmentResult) Skipped() []ItemAdjustment {
	return r.filter(ItemSkippedMissing)
}

// Failed returns the items whose adjustment hit an error
func (r *AdjustmentResult) Failed() []ItemAdjustment {
	return r.filter(ItemFailed)
}

// HasEffect reports whether the transition touched stock at all
func (r *AdjustmentResult) HasEffect() bool {
	return r.Direction != ""
}

// Err returns a *PartialAdjustmentFailure when any item failed or was skipped
func (r *AdjustmentResult) Err() error {
	var problems []ItemAdjustment
	for _, item := range r.Items {
		if item.Outcome != ItemApplied {
			problems = append(problems, item)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &PartialAdjustmentFailure{OrderID: r.OrderID, Items: problems}
}

func (r *AdjustmentResult) filter(outcome ItemOutcome) []ItemAdjustment {
	var out []ItemAdjustment
	for _, item := range r.Items {
		if item.Outcome == outcome {
			out = append(out, item)
		}
	}
	return out
}

// StockAdjuster applies one history entry to a medicine atomically
type StockAdjuster interface {
	ApplyStockDelta(ctx context.Context, medicineID string, entry StockHistoryEntry) (*StockChange, error)
}

// AdjustmentEngine applies the stock side effects of order status transitions.
// It holds no state of its own.
type AdjustmentEngine struct {
	stock StockAdjuster
	clock func() time.Time
}

// NewAdjustmentEngine creates an engine writing through stock
func NewAdjustmentEngine(stock StockAdjuster) *AdjustmentEngine {
	return &AdjustmentEngine{
		stock: stock,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source used for history entries
func (e *AdjustmentEngine) WithClock(clock func() time.Time) *AdjustmentEngine {
	e.clock = clock
	return e
}

// Apply adjusts stock for every item of order according to the from → to
// transition. Each item is attempted once. A missing medicine or a failed
// write is recorded on the result and the loop moves on.
func (e *AdjustmentEngine) Apply(ctx context.Context, order *Order, from, to OrderStatus) *AdjustmentResult {
	result := &AdjustmentResult{
		OrderID: order.ID,
		From:    from,
		To:      to,
		Items:   []ItemAdjustment{},
	}

	direction, ok := StockEffect(from, to)
	if !ok {
		return result
	}
	result.Direction = direction

	note := fmt.Sprintf("Order #%s completed", order.ID)
	if direction == StockIncrease {
		note = fmt.Sprintf("Order #%s cancelled", order.ID)
	}

	for _, item := range order.Items {
		adj := ItemAdjustment{
			ItemID:     item.ID,
			MedicineID: item.MedicineID,
			Quantity:   item.Quantity,
			Direction:  direction,
		}

		delta := StockDelta{Quantity: item.Quantity, Direction: direction, Note: note}
		change, err := e.stock.ApplyStockDelta(ctx, item.MedicineID, delta.NewEntry(e.clock()))
		switch {
		case errors.Is(err, ErrMedicineNotFound):
			adj.Outcome = ItemSkippedMissing
		case err != nil:
			adj.Outcome = ItemFailed
			adj.Error = err.Error()
		default:
			adj.Outcome = ItemApplied
			adj.PreviousStock = change.PreviousStock
			adj.NewStock = change.Medicine.Stock
		}
		result.Items = append(result.Items, adj)
	}

	return result
}
