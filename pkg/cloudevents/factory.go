package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
)

// EventFactory creates CloudEvents for one source
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent builds an event and copies correlation and user ids from ctx
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *PharmacyCloudEvent {
	return &PharmacyCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		CorrelationID:   logging.CorrelationIDFromContext(ctx),
		UserID:          logging.UserIDFromContext(ctx),
	}
}

// MedicineEvent builds a medicine lifecycle event
func (f *EventFactory) MedicineEvent(ctx context.Context, eventType string, data MedicineData) *PharmacyCloudEvent {
	return f.CreateEvent(ctx, eventType, "medicine/"+data.MedicineID, data)
}

// StockAdjustedEvent builds a MedicineStockAdjusted event
func (f *EventFactory) StockAdjustedEvent(ctx context.Context, data StockAdjustedData) *PharmacyCloudEvent {
	return f.CreateEvent(ctx, MedicineStockAdjusted, "medicine/"+data.MedicineID, data)
}

// OrderCreatedEvent builds an OrderCreated event
func (f *EventFactory) OrderCreatedEvent(ctx context.Context, data OrderCreatedData) *PharmacyCloudEvent {
	return f.CreateEvent(ctx, OrderCreated, "order/"+data.OrderID, data)
}

// OrderStatusChangedEvent builds an OrderStatusChanged event
func (f *EventFactory) OrderStatusChangedEvent(ctx context.Context, data OrderStatusChangedData) *PharmacyCloudEvent {
	return f.CreateEvent(ctx, OrderStatusChanged, "order/"+data.OrderID, data)
}
