package mongodb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	pmongo "github.com/pharmacy-platform/pharmacy-service/pkg/mongodb"
	ptesting "github.com/pharmacy-platform/pharmacy-service/pkg/testing"
)

func setupRepositories(t *testing.T) (*MedicineRepository, *OrderRepository) {
	t.Helper()
	container := ptesting.StartMongoDB(t)

	ctx, cancel := ptesting.CreateTestContext(30 * time.Second)
	defer cancel()

	client, err := container.NewDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	medicines := NewMedicineRepository(client)
	orders := NewOrderRepository(client)
	require.NoError(t, medicines.EnsureIndexes(ctx))
	require.NoError(t, orders.EnsureIndexes(ctx))
	return medicines, orders
}

func newTestMedicine(id string, stock int) *domain.Medicine {
	med := &domain.Medicine{
		ID:       id,
		Name:     "Medicine " + id,
		Category: "Analgesic",
		Origin:   "DE",
		Stock:    stock,
	}
	med.PrepareForCreate(pmongo.Now())
	return med
}

func TestRepositories_Integration(t *testing.T) {
	medicines, orders := setupRepositories(t)
	ctx := context.Background()

	t.Run("medicine create and duplicate", func(t *testing.T) {
		require.NoError(t, medicines.Create(ctx, newTestMedicine("dup-1", 3)))
		err := medicines.Create(ctx, newTestMedicine("dup-1", 3))
		assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	})

	t.Run("medicine not found", func(t *testing.T) {
		_, err := medicines.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrMedicineNotFound)
		assert.ErrorIs(t, medicines.Delete(ctx, "missing"), domain.ErrMedicineNotFound)

		entry := domain.StockDelta{Quantity: 1, Direction: domain.StockIncrease}.NewEntry(pmongo.Now())
		_, err = medicines.ApplyStockDelta(ctx, "missing", entry)
		assert.ErrorIs(t, err, domain.ErrMedicineNotFound)
	})

	t.Run("partial update keeps stock", func(t *testing.T) {
		require.NoError(t, medicines.Create(ctx, newTestMedicine("patch-1", 9)))
		notes := "top shelf"

		updated, err := medicines.Update(ctx, "patch-1", domain.MedicinePatch{Notes: &notes})
		require.NoError(t, err)
		assert.Equal(t, "top shelf", updated.Notes)
		assert.Equal(t, 9, updated.Stock)
		assert.Equal(t, "Analgesic", updated.Category)
	})

	t.Run("stock delta clamps and prepends", func(t *testing.T) {
		require.NoError(t, medicines.Create(ctx, newTestMedicine("stock-1", 4)))

		seed := domain.StockDelta{Quantity: 0, Direction: domain.StockDecrease}.NewEntry(pmongo.Now())
		change, err := medicines.ApplyStockDelta(ctx, "stock-1", seed)
		require.NoError(t, err)
		assert.Equal(t, 4, change.Medicine.Stock, "seed entry keeps stock")

		remove := domain.StockDelta{Quantity: 10, Direction: domain.StockDecrease}.NewEntry(pmongo.Now())
		change, err = medicines.ApplyStockDelta(ctx, "stock-1", remove)
		require.NoError(t, err)
		assert.Equal(t, 4, change.PreviousStock)
		assert.Equal(t, 0, change.Medicine.Stock)

		stored, err := medicines.FindByID(ctx, "stock-1")
		require.NoError(t, err)
		assert.Equal(t, 0, stored.Stock)
		require.Len(t, stored.History, 2)
		assert.Equal(t, remove.ID, stored.History[0].ID)
		assert.Equal(t, 10, stored.History[0].Quantity)
		assert.Equal(t, "Stock removed", stored.History[0].Note)
		assert.Equal(t, seed.ID, stored.History[1].ID)
	})

	t.Run("notes with operators are stored literally", func(t *testing.T) {
		require.NoError(t, medicines.Create(ctx, newTestMedicine("literal-1", 1)))
		entry := domain.StockDelta{Quantity: 1, Direction: domain.StockIncrease, Note: "$stock"}.NewEntry(pmongo.Now())
		change, err := medicines.ApplyStockDelta(ctx, "literal-1", entry)
		require.NoError(t, err)
		assert.Equal(t, 2, change.Medicine.Stock)

		stored, err := medicines.FindByID(ctx, "literal-1")
		require.NoError(t, err)
		assert.Equal(t, "$stock", stored.History[0].Note)
	})

	t.Run("concurrent decreases never go negative", func(t *testing.T) {
		med := newTestMedicine("race-1", 10)
		med.History = []domain.StockHistoryEntry{{ID: "hist-seed", Quantity: 10, Type: domain.StockIncrease}}
		require.NoError(t, medicines.Create(ctx, med))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				entry := domain.StockDelta{Quantity: 3, Direction: domain.StockDecrease}.NewEntry(pmongo.Now())
				_, err := medicines.ApplyStockDelta(ctx, "race-1", entry)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		stored, err := medicines.FindByID(ctx, "race-1")
		require.NoError(t, err)
		assert.Equal(t, 0, stored.Stock)
		assert.Len(t, stored.History, 9)
	})

	t.Run("medicine filter", func(t *testing.T) {
		antibiotic := newTestMedicine("filter-1", 2)
		antibiotic.Name = "Amoxicillin"
		antibiotic.Category = "Antibiotic"
		require.NoError(t, medicines.Create(ctx, antibiotic))

		found, err := medicines.FindAll(ctx, domain.MedicineFilter{Category: "Antibiotic", Search: "amoxi"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "filter-1", found[0].ID)

		regexLike, err := medicines.FindAll(ctx, domain.MedicineFilter{Search: ".*"})
		require.NoError(t, err)
		assert.Empty(t, regexLike)

		count, err := medicines.CountLowStock(ctx, 2)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, int64(1))
	})

	t.Run("order lifecycle", func(t *testing.T) {
		order := &domain.Order{
			UserID:   " user-7 ",
			UserName: "Sam",
			Items: []domain.OrderItem{
				{ID: "i1", MedicineID: "stock-1", Name: "A", Quantity: 2},
				{ID: "i2", MedicineID: "patch-1", Name: "B", Quantity: 3},
			},
		}
		order.PrepareForCreate(pmongo.Now())
		require.NoError(t, orders.Create(ctx, order))

		dup := *order
		assert.ErrorIs(t, orders.Create(ctx, &dup), domain.ErrDuplicateKey)

		fetched, err := orders.FindByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.Items, fetched.Items)
		assert.Equal(t, domain.StatusPending, fetched.Status)
		assert.Equal(t, 5, fetched.Total)
		assert.Equal(t, order.ID, fetched.OrderID)

		mine, err := orders.FindByUserID(ctx, "user-7")
		require.NoError(t, err)
		require.Len(t, mine, 1)

		fetched.TransitionTo(domain.StatusCompleted, pmongo.Now())
		saved, err := orders.TransitionStatus(ctx, fetched, domain.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, saved.Status)
		assert.NotNil(t, saved.CompletionDate)

		_, err = orders.TransitionStatus(ctx, fetched, domain.StatusPending)
		assert.ErrorIs(t, err, domain.ErrConcurrentStatusChange)

		withNotes, err := orders.UpdateNotes(ctx, order.ID, "call before delivery")
		require.NoError(t, err)
		assert.Equal(t, "call before delivery", withNotes.Notes)
		assert.Equal(t, 5, withNotes.Total)

		counts, err := orders.CountByStatus(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, counts[domain.StatusCompleted])
		assert.EqualValues(t, 0, counts[domain.StatusPending])

		units, err := orders.SumUnits(ctx, domain.StatusCompleted)
		require.NoError(t, err)
		assert.EqualValues(t, 5, units)

		require.NoError(t, orders.Delete(ctx, order.ID))
		_, err = orders.FindByID(ctx, order.ID)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		_, err = orders.TransitionStatus(ctx, fetched, domain.StatusCompleted)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}
