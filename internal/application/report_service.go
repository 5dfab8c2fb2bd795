package application

import (
	"context"
	"time"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
)

// ReportApplicationService builds the dashboard summary
type ReportApplicationService struct {
	medicines         domain.MedicineRepository
	orders            domain.OrderRepository
	logger            *logging.Logger
	metrics           *metrics.Metrics
	lowStockThreshold int
}

// NewReportApplicationService creates a new ReportApplicationService
func NewReportApplicationService(
	medicines domain.MedicineRepository,
	orders domain.OrderRepository,
	logger *logging.Logger,
	m *metrics.Metrics,
	lowStockThreshold int,
) *ReportApplicationService {
	return &ReportApplicationService{
		medicines:         medicines,
		orders:            orders,
		logger:            logger,
		metrics:           m,
		lowStockThreshold: lowStockThreshold,
	}
}

// Summary counts medicines, stock and orders per status
func (s *ReportApplicationService) Summary(ctx context.Context) (*SummaryDTO, error) {
	medicines, err := s.medicines.FindAll(ctx, domain.MedicineFilter{})
	if err != nil {
		return nil, toAppError(err, medicineResource, "")
	}

	lowStock, err := s.medicines.CountLowStock(ctx, s.lowStockThreshold)
	if err != nil {
		return nil, toAppError(err, medicineResource, "")
	}

	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return nil, toAppError(err, orderResource, "")
	}

	dispensed, err := s.orders.SumUnits(ctx, domain.StatusCompleted)
	if err != nil {
		return nil, toAppError(err, orderResource, "")
	}

	totalStock := 0
	for _, med := range medicines {
		totalStock += med.Stock
	}

	byStatus := make(map[string]int64, len(domain.AllStatuses))
	for _, status := range domain.AllStatuses {
		byStatus[string(status)] = counts[status]
	}

	if s.metrics != nil {
		s.metrics.SetLowStockMedicines(int(lowStock))
	}
	s.logger.WithContext(ctx).Debug("Built summary report", "medicines", len(medicines), "orders", counts.Total())

	return &SummaryDTO{
		TotalMedicines:    len(medicines),
		TotalStock:        totalStock,
		LowStockMedicines: lowStock,
		LowStockThreshold: s.lowStockThreshold,
		OrdersByStatus:    byStatus,
		TotalOrders:       counts.Total(),
		UnitsDispensed:    dispensed,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}
