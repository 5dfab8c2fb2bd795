package application

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmacy-platform/pharmacy-service/internal/application/apptest"
	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/cloudevents"
	apperrors "github.com/pharmacy-platform/pharmacy-service/pkg/errors"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
)

type orderFixture struct {
	service   *OrderApplicationService
	orders    *apptest.OrderRepository
	medicines *apptest.MedicineRepository
	recorder  *apptest.Recorder
}

func newOrderFixture(meds ...*domain.Medicine) *orderFixture {
	f := &orderFixture{
		orders:    apptest.NewOrderRepository(),
		medicines: apptest.NewMedicineRepository(meds...),
		recorder:  &apptest.Recorder{},
	}
	m := metrics.New(metrics.DefaultConfig("pharmacy-test"))
	f.service = NewOrderApplicationService(f.orders, f.medicines, f.recorder, nil, logging.NewNop(), m)
	return f
}

func stockedMedicine(id string, stock int) *domain.Medicine {
	return &domain.Medicine{
		ID: id, Name: id, Category: "Analgesic", Origin: "DE", Stock: stock,
		History: []domain.StockHistoryEntry{{ID: "hist-seed", Quantity: stock, Type: domain.StockIncrease}},
	}
}

func createCommand(items ...OrderItemInput) CreateOrderCommand {
	return CreateOrderCommand{UserID: "user-1", UserName: "Dana", Items: items}
}

func requireAppError(t *testing.T, err error, status int) *apperrors.AppError {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, status, appErr.HTTPStatus)
	return appErr
}

func TestCreateOrder(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	created, err := f.service.CreateOrder(ctx, createCommand(
		OrderItemInput{ID: "i1", MedicineID: "med-a", Name: "A", Quantity: 5},
		OrderItemInput{ID: "i2", MedicineID: "med-b", Name: "B", Quantity: 1},
	))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, 6, created.Total)
	assert.Nil(t, created.CompletionDate)

	fetched, err := f.service.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Items, fetched.Items)
	assert.Equal(t, created.Status, fetched.Status)

	assert.Equal(t, []string{cloudevents.OrderCreated}, f.recorder.Types())
}

func TestCreateOrder_RejectsMalformedIntake(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	_, err := f.service.CreateOrder(ctx, createCommand())
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, apperrors.CodeInvalidOrder, appErr.Code)
	assert.Equal(t, "items", appErr.Details["field"])

	_, err = f.service.CreateOrder(ctx, createCommand(OrderItemInput{ID: "i1", MedicineID: "m", Name: "A", Quantity: 0}))
	appErr = requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, "items[0].quantity", appErr.Details["field"])

	all, err := f.service.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "rejected orders are never stored")
	assert.Empty(t, f.recorder.Events)
}

func TestCreateOrder_DuplicateID(t *testing.T) {
	f := newOrderFixture()
	cmd := createCommand(OrderItemInput{ID: "i1", MedicineID: "m", Name: "A", Quantity: 1})
	cmd.ID = "ORD-FIXED"

	_, err := f.service.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)

	_, err = f.service.CreateOrder(context.Background(), cmd)
	appErr := requireAppError(t, err, http.StatusConflict)
	assert.Equal(t, apperrors.CodeDuplicateKey, appErr.Code)
}

func TestUpdateOrderStatus_CompleteThenCancel(t *testing.T) {
	f := newOrderFixture(stockedMedicine("med-a", 10))
	ctx := context.Background()

	order, err := f.service.CreateOrder(ctx, createCommand(OrderItemInput{ID: "i1", MedicineID: "med-a", Name: "A", Quantity: 5}))
	require.NoError(t, err)

	completed, err := f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, "completed", completed.Order.Status)
	assert.NotNil(t, completed.Order.CompletionDate)
	assert.Equal(t, 1, completed.Adjustment.Applied)
	assert.False(t, completed.PartialFailure)
	assert.Equal(t, 5, f.medicines.Stock("med-a"))

	med, err := f.medicines.FindByID(ctx, "med-a")
	require.NoError(t, err)
	assert.Equal(t, domain.StockDecrease, med.History[0].Type)
	assert.Equal(t, "Order #"+order.ID+" completed", med.History[0].Note)

	cancelled, err := f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, "increase", cancelled.Adjustment.Direction)
	assert.Equal(t, 10, f.medicines.Stock("med-a"))
	assert.Equal(t, completed.Order.CompletionDate, cancelled.Order.CompletionDate)

	assert.Equal(t, 2, f.recorder.Count(cloudevents.OrderStatusChanged))
	assert.Equal(t, 2, f.recorder.Count(cloudevents.MedicineStockAdjusted))
}

func TestUpdateOrderStatus_SameStatusIsNoOp(t *testing.T) {
	f := newOrderFixture(stockedMedicine("med-a", 10))
	ctx := context.Background()

	order, err := f.service.CreateOrder(ctx, createCommand(OrderItemInput{ID: "i1", MedicineID: "med-a", Name: "A", Quantity: 4}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "completed"})
		require.NoError(t, err)
	}
	assert.Equal(t, 6, f.medicines.Stock("med-a"), "repeated completion decrements once")
	assert.Equal(t, 1, f.recorder.Count(cloudevents.OrderStatusChanged))
}

func TestUpdateOrderStatus_ConcurrentCompletionAppliesOnce(t *testing.T) {
	f := newOrderFixture(stockedMedicine("med-a", 100))
	ctx := context.Background()

	order, err := f.service.CreateOrder(ctx, createCommand(OrderItemInput{ID: "i1", MedicineID: "med-a", Name: "A", Quantity: 10}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	conflicts := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "completed"})
			if err != nil {
				appErr, ok := apperrors.AsAppError(err)
				if assert.True(t, ok) {
					assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
				}
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 90, f.medicines.Stock("med-a"))
	assert.Equal(t, 1, f.recorder.Count(cloudevents.OrderStatusChanged))
	assert.LessOrEqual(t, conflicts, 9)
}

func TestUpdateOrderStatus_MissingMedicineSkipped(t *testing.T) {
	f := newOrderFixture(stockedMedicine("med-a", 3))
	ctx := context.Background()

	order, err := f.service.CreateOrder(ctx, createCommand(
		OrderItemInput{ID: "i1", MedicineID: "deleted", Name: "Gone", Quantity: 2},
		OrderItemInput{ID: "i2", MedicineID: "med-a", Name: "A", Quantity: 1},
	))
	require.NoError(t, err)

	result, err := f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Order.Status)
	assert.True(t, result.PartialFailure)
	assert.Equal(t, 1, result.Adjustment.Skipped)
	assert.Equal(t, 1, result.Adjustment.Applied)
	assert.Equal(t, "skipped_missing", result.Adjustment.Items[0].Outcome)
	assert.Equal(t, 2, f.medicines.Stock("med-a"))
}

func TestUpdateOrderStatus_WriteFailureIsReported(t *testing.T) {
	f := newOrderFixture(stockedMedicine("med-a", 3), stockedMedicine("med-b", 3))
	f.medicines.ApplyErrors["med-a"] = errors.New("connection reset")
	ctx := context.Background()

	order, err := f.service.CreateOrder(ctx, createCommand(
		OrderItemInput{ID: "i1", MedicineID: "med-a", Name: "A", Quantity: 1},
		OrderItemInput{ID: "i2", MedicineID: "med-b", Name: "B", Quantity: 1},
	))
	require.NoError(t, err)

	result, err := f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Adjustment.Failed)
	assert.Equal(t, "connection reset", result.Adjustment.Items[0].Error)
	assert.Equal(t, 2, f.medicines.Stock("med-b"))

	stored, err := f.service.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", stored.Status)
}

func TestUpdateOrderStatus_NoEffectTransitions(t *testing.T) {
	f := newOrderFixture(stockedMedicine("med-a", 10))
	ctx := context.Background()

	order, err := f.service.CreateOrder(ctx, createCommand(OrderItemInput{ID: "i1", MedicineID: "med-a", Name: "A", Quantity: 4}))
	require.NoError(t, err)

	for _, status := range []string{"processing", "cancelled", "pending"} {
		res, err := f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: status})
		require.NoError(t, err)
		assert.Empty(t, res.Adjustment.Items)
	}
	assert.Equal(t, 10, f.medicines.Stock("med-a"))
}

func TestUpdateOrderStatus_Errors(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	_, err := f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: "nope", Status: "completed"})
	requireAppError(t, err, http.StatusNotFound)

	_, err = f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: "nope", Status: "shipped"})
	requireAppError(t, err, http.StatusBadRequest)
}

type refusingLocker struct{}

func (refusingLocker) Lock(context.Context, string) (func(), error) {
	return nil, domain.ErrOrderLocked
}

func TestUpdateOrderStatus_LockNotObtained(t *testing.T) {
	orders := apptest.NewOrderRepository()
	service := NewOrderApplicationService(orders, apptest.NewMedicineRepository(), nil, refusingLocker{}, logging.NewNop(), nil)

	_, err := service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD1", Status: "completed"})
	requireAppError(t, err, http.StatusConflict)
}

func TestListUserOrders(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	item := OrderItemInput{ID: "i1", MedicineID: "m", Name: "A", Quantity: 1}
	_, err := f.service.CreateOrder(ctx, CreateOrderCommand{UserID: "42", Items: []OrderItemInput{item}})
	require.NoError(t, err)
	_, err = f.service.CreateOrder(ctx, CreateOrderCommand{UserID: "7", Items: []OrderItemInput{item}})
	require.NoError(t, err)

	mine, err := f.service.ListUserOrders(ctx, " 42 ")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "42", mine[0].UserID)

	_, err = f.service.ListUserOrders(ctx, "  ")
	requireAppError(t, err, http.StatusBadRequest)
}

func TestUpdateNotesAndDelete(t *testing.T) {
	f := newOrderFixture(stockedMedicine("med-a", 10))
	ctx := context.Background()

	order, err := f.service.CreateOrder(ctx, createCommand(OrderItemInput{ID: "i1", MedicineID: "med-a", Name: "A", Quantity: 2}))
	require.NoError(t, err)
	_, err = f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "completed"})
	require.NoError(t, err)

	updated, err := f.service.UpdateOrderNotes(ctx, UpdateOrderNotesCommand{OrderID: order.ID, Notes: "picked up"})
	require.NoError(t, err)
	assert.Equal(t, "picked up", updated.Notes)
	assert.Equal(t, "completed", updated.Status)

	require.NoError(t, f.service.DeleteOrder(ctx, order.ID))
	assert.Equal(t, 8, f.medicines.Stock("med-a"), "deleting an order leaves stock alone")

	_, err = f.service.GetOrder(ctx, order.ID)
	requireAppError(t, err, http.StatusNotFound)
	requireAppError(t, f.service.DeleteOrder(ctx, order.ID), http.StatusNotFound)
	_, err = f.service.UpdateOrderNotes(ctx, UpdateOrderNotesCommand{OrderID: order.ID})
	requireAppError(t, err, http.StatusNotFound)
}
