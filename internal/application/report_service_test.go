package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmacy-platform/pharmacy-service/internal/application/apptest"
	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
)

func TestSummary(t *testing.T) {
	medicines := apptest.NewMedicineRepository(
		&domain.Medicine{ID: "1", Name: "A", Category: "c", Origin: "o", Stock: 3},
		&domain.Medicine{ID: "2", Name: "B", Category: "c", Origin: "o", Stock: 30},
	)
	orders := apptest.NewOrderRepository(
		&domain.Order{ID: "o1", Status: domain.StatusCompleted, Total: 4},
		&domain.Order{ID: "o2", Status: domain.StatusCompleted, Total: 6},
		&domain.Order{ID: "o3", Status: domain.StatusPending, Total: 1},
	)

	service := NewReportApplicationService(medicines, orders, logging.NewNop(), nil, 10)
	summary, err := service.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalMedicines)
	assert.Equal(t, 33, summary.TotalStock)
	assert.Equal(t, int64(1), summary.LowStockMedicines)
	assert.Equal(t, 10, summary.LowStockThreshold)
	assert.Equal(t, int64(3), summary.TotalOrders)
	assert.Equal(t, int64(10), summary.UnitsDispensed)
	assert.Equal(t, int64(2), summary.OrdersByStatus["completed"])
	assert.Equal(t, int64(0), summary.OrdersByStatus["cancelled"])
	assert.False(t, summary.GeneratedAt.IsZero())
}
