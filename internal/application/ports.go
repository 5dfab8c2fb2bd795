package application

import (
	"context"
	"io"
	"time"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/cloudevents"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/outbox"
)

// OrderLocker serialises status changes of a single order. The returned
// func releases the lock.
type OrderLocker interface {
	Lock(ctx context.Context, orderID string) (func(), error)
}

// NopLocker is used when no distributed lock is configured
type NopLocker struct{}

// Lock always succeeds
func (NopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// InventoryExporter renders medicines into a downloadable report
type InventoryExporter interface {
	WriteInventory(w io.Writer, medicines []*domain.Medicine, generatedAt time.Time) error
	FileName(generatedAt time.Time) string
	ContentType() string
}

// eventRecorder writes events to the outbox. Recording happens after the
// entity write and a failure is logged, not returned: the entity write has
// already happened and cannot be rolled back.
type eventRecorder struct {
	recorder outbox.Recorder
	factory  *cloudevents.EventFactory
	logger   *logging.Logger
}

func (r *eventRecorder) record(ctx context.Context, aggregateType, aggregateID, topic string, events ...*cloudevents.PharmacyCloudEvent) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, aggregateType, aggregateID, topic, events...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to record outbox events",
			"aggregateType", aggregateType,
			"aggregateId", aggregateID,
			"events", len(events),
		)
	}
}
