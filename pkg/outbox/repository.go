package outbox

import (
	"context"
	"fmt"

	"github.com/pharmacy-platform/pharmacy-service/pkg/cloudevents"
)

// Repository defines outbox event persistence
type Repository interface {
	Save(ctx context.Context, event *OutboxEvent) error

	// FindUnpublished returns the oldest unpublished events that still have retries left
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry bumps the retry count and records the last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	CountPending(ctx context.Context) (int64, error)
}

// Recorder stores domain events for later delivery
type Recorder interface {
	Record(ctx context.Context, aggregateType, aggregateID, topic string, events ...*cloudevents.PharmacyCloudEvent) error
}

// Writer is the Repository backed Recorder
type Writer struct {
	repo Repository
}

// NewWriter creates a Writer
func NewWriter(repo Repository) *Writer {
	return &Writer{repo: repo}
}

// Record saves one outbox row per event
func (w *Writer) Record(ctx context.Context, aggregateType, aggregateID, topic string, events ...*cloudevents.PharmacyCloudEvent) error {
	for _, event := range events {
		row, err := NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topic, event)
		if err != nil {
			return fmt.Errorf("failed to encode outbox event %s: %w", event.Type, err)
		}
		if err := w.repo.Save(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
