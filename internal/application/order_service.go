package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/cloudevents"
	apperrors "github.com/pharmacy-platform/pharmacy-service/pkg/errors"
	"github.com/pharmacy-platform/pharmacy-service/pkg/kafka"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
	"github.com/pharmacy-platform/pharmacy-service/pkg/outbox"
	"github.com/pharmacy-platform/pharmacy-service/pkg/tracing"
)

const orderResource = "order"

// OrderApplicationService handles order use cases
type OrderApplicationService struct {
	orders  domain.OrderRepository
	engine  *domain.AdjustmentEngine
	locker  OrderLocker
	events  *eventRecorder
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewOrderApplicationService creates a new OrderApplicationService. Stock
// effects are written through stock. recorder, locker and m may be nil.
func NewOrderApplicationService(
	orders domain.OrderRepository,
	stock domain.StockAdjuster,
	recorder outbox.Recorder,
	locker OrderLocker,
	logger *logging.Logger,
	m *metrics.Metrics,
) *OrderApplicationService {
	if locker == nil {
		locker = NopLocker{}
	}
	now := func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

	return &OrderApplicationService{
		orders: orders,
		engine: domain.NewAdjustmentEngine(stock).WithClock(now),
		locker: locker,
		events: &eventRecorder{
			recorder: recorder,
			factory:  cloudevents.NewEventFactory(cloudevents.SourceOrders),
			logger:   logger,
		},
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("pharmacy-service/orders"),
		now:     now,
	}
}

// CreateOrder validates and stores a new order
func (s *OrderApplicationService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*OrderDTO, error) {
	order := cmd.ToDomain()
	if err := domain.ValidateOrder(order); err != nil {
		return nil, toAppError(err, orderResource, cmd.ID)
	}

	order.PrepareForCreate(s.now())

	if err := s.orders.Create(ctx, order); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to create order", "orderId", order.ID)
		return nil, toAppError(err, orderResource, order.ID)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.events.record(ctx, "Order", order.ID, kafka.Topics.OrderEvents,
		s.events.factory.OrderCreatedEvent(ctx, toOrderCreatedData(order)))
	s.logger.Audit(ctx, "create", orderResource, order.ID, order.UserID, map[string]any{
		"items": len(order.Items),
		"total": order.Total,
	})

	return ToOrderDTO(order), nil
}

// GetOrder retrieves an order by id
func (s *OrderApplicationService) GetOrder(ctx context.Context, id string) (*OrderDTO, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, toAppError(err, orderResource, id)
	}
	return ToOrderDTO(order), nil
}

// ListOrders lists every order, newest first
func (s *OrderApplicationService) ListOrders(ctx context.Context) ([]OrderDTO, error) {
	orders, err := s.orders.FindAll(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list orders")
		return nil, toAppError(err, orderResource, "")
	}
	return ToOrderDTOs(orders), nil
}

// ListUserOrders lists the orders placed by userID
func (s *OrderApplicationService) ListUserOrders(ctx context.Context, userID string) ([]OrderDTO, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.ErrValidation("User ID is required")
	}
	orders, err := s.orders.FindByUserID(ctx, userID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list user orders", "userId", userID)
		return nil, toAppError(err, orderResource, "")
	}
	return ToOrderDTOs(orders), nil
}

// UpdateOrderStatus moves an order to a new status and applies the stock
// side effects of the transition.
//
// The status write is conditional on the status that was read, and stock
// is adjusted only after that write wins. A replayed or concurrent request
// that read the same previous status therefore loses the write and never
// applies stock a second time. Setting the current status again is a no-op.
func (s *OrderApplicationService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (*StatusChangeDTO, error) {
	to := domain.OrderStatus(cmd.Status)
	if !to.IsValid() {
		return nil, apperrors.ErrValidationWithFields(
			fmt.Sprintf("Invalid status %q", cmd.Status),
			map[string]string{"status": "must be one of pending, processing, completed, cancelled"},
		)
	}

	unlock, err := s.locker.Lock(ctx, cmd.OrderID)
	if err != nil {
		return nil, toAppError(err, orderResource, cmd.OrderID)
	}
	defer unlock()

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, toAppError(err, orderResource, cmd.OrderID)
	}

	from := order.Status
	if from == to {
		result := s.engine.Apply(ctx, order, from, to)
		return &StatusChangeDTO{Order: *ToOrderDTO(order), Adjustment: ToAdjustmentDTO(result)}, nil
	}

	order.TransitionTo(to, s.now())
	saved, err := s.orders.TransitionStatus(ctx, order, from)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Order status not saved",
			"orderId", cmd.OrderID,
			"from", from,
			"to", to,
		)
		return nil, toAppError(err, orderResource, cmd.OrderID)
	}

	// A partial failure marks the span but is not returned
	result, _ := tracing.TracedOperation(ctx, s.tracer, "inventory.adjust",
		func(ctx context.Context) (*domain.AdjustmentResult, error) {
			r := s.engine.Apply(ctx, saved, from, to)
			return r, r.Err()
		},
		attribute.String("order.id", saved.ID),
		attribute.String("order.from", string(from)),
		attribute.String("order.to", string(to)),
	)
	s.observeAdjustment(ctx, result)

	s.events.record(ctx, "Order", saved.ID, kafka.Topics.OrderEvents,
		s.events.factory.OrderStatusChangedEvent(ctx, cloudevents.OrderStatusChangedData{
			OrderID:        saved.ID,
			PreviousStatus: string(from),
			NewStatus:      string(to),
			Applied:        len(result.Applied()),
			Skipped:        len(result.Skipped()),
			Failed:         len(result.Failed()),
		}))
	s.logger.Audit(ctx, "status-change", orderResource, saved.ID, logging.UserIDFromContext(ctx), map[string]any{
		"from": string(from),
		"to":   string(to),
	})

	return &StatusChangeDTO{
		Order:          *ToOrderDTO(saved),
		Adjustment:     ToAdjustmentDTO(result),
		PartialFailure: result.Err() != nil,
	}, nil
}

// observeAdjustment logs and measures each item outcome and records a
// stock-adjusted event for every applied item
func (s *OrderApplicationService) observeAdjustment(ctx context.Context, result *domain.AdjustmentResult) {
	if s.metrics != nil {
		s.metrics.RecordOrderTransition(string(result.From), string(result.To))
	}
	if !result.HasEffect() {
		return
	}

	stockEvents := cloudevents.NewEventFactory(cloudevents.SourceInventory)
	for _, item := range result.Items {
		moved := 0
		if item.Outcome == domain.ItemApplied {
			moved = item.PreviousStock - item.NewStock
			if moved < 0 {
				moved = -moved
			}
			s.logger.StockAdjustment(ctx, item.MedicineID, string(item.Direction), item.Quantity, item.PreviousStock, item.NewStock, "order "+result.OrderID)
			s.events.record(ctx, "Medicine", item.MedicineID, kafka.Topics.MedicineEvents,
				stockEvents.StockAdjustedEvent(ctx, cloudevents.StockAdjustedData{
					MedicineID:  item.MedicineID,
					Direction:   string(item.Direction),
					Requested:   item.Quantity,
					PreviousQty: item.PreviousStock,
					NewQty:      item.NewStock,
					OrderID:     result.OrderID,
				}))
		}
		if s.metrics != nil {
			s.metrics.RecordStockAdjustment(string(item.Direction), string(item.Outcome), moved)
		}
	}

	if err := result.Err(); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Order status saved with partial stock adjustment",
			"orderId", result.OrderID,
			"skipped", len(result.Skipped()),
			"failed", len(result.Failed()),
		)
	}
}

// UpdateOrderNotes replaces the notes of an order without touching stock
func (s *OrderApplicationService) UpdateOrderNotes(ctx context.Context, cmd UpdateOrderNotesCommand) (*OrderDTO, error) {
	order, err := s.orders.UpdateNotes(ctx, cmd.OrderID, cmd.Notes)
	if err != nil {
		return nil, toAppError(err, orderResource, cmd.OrderID)
	}
	s.events.record(ctx, "Order", order.ID, kafka.Topics.OrderEvents,
		s.events.factory.CreateEvent(ctx, cloudevents.OrderNotesUpdated, "order/"+order.ID, cloudevents.OrderData{
			OrderID: order.ID,
			UserID:  order.UserID,
			Status:  string(order.Status),
		}))
	s.logger.Audit(ctx, "update-notes", orderResource, order.ID, logging.UserIDFromContext(ctx), nil)
	return ToOrderDTO(order), nil
}

// DeleteOrder removes an order. Stock is left as it is.
func (s *OrderApplicationService) DeleteOrder(ctx context.Context, id string) error {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return toAppError(err, orderResource, id)
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return toAppError(err, orderResource, id)
	}

	s.events.record(ctx, "Order", id, kafka.Topics.OrderEvents,
		s.events.factory.CreateEvent(ctx, cloudevents.OrderDeleted, "order/"+id, cloudevents.OrderData{
			OrderID: order.ID,
			UserID:  order.UserID,
			Status:  string(order.Status),
		}))
	s.logger.Audit(ctx, "delete", orderResource, id, logging.UserIDFromContext(ctx), nil)
	return nil
}
