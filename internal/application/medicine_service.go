package application

import (
	"bytes"
	"context"
	"time"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/cloudevents"
	apperrors "github.com/pharmacy-platform/pharmacy-service/pkg/errors"
	"github.com/pharmacy-platform/pharmacy-service/pkg/kafka"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
	"github.com/pharmacy-platform/pharmacy-service/pkg/outbox"
)

const medicineResource = "medicine"

// MedicineApplicationService handles inventory use cases
type MedicineApplicationService struct {
	repo              domain.MedicineRepository
	exporter          InventoryExporter
	events            *eventRecorder
	logger            *logging.Logger
	metrics           *metrics.Metrics
	lowStockThreshold int
	now               func() time.Time
}

// NewMedicineApplicationService creates a new MedicineApplicationService.
// recorder and m may be nil.
func NewMedicineApplicationService(
	repo domain.MedicineRepository,
	recorder outbox.Recorder,
	exporter InventoryExporter,
	logger *logging.Logger,
	m *metrics.Metrics,
	lowStockThreshold int,
) *MedicineApplicationService {
	return &MedicineApplicationService{
		repo:     repo,
		exporter: exporter,
		events: &eventRecorder{
			recorder: recorder,
			factory:  cloudevents.NewEventFactory(cloudevents.SourceInventory),
			logger:   logger,
		},
		logger:            logger,
		metrics:           m,
		lowStockThreshold: lowStockThreshold,
		now:               func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// LowStockThreshold returns the configured default threshold
func (s *MedicineApplicationService) LowStockThreshold() int {
	return s.lowStockThreshold
}

// CreateMedicine adds a medicine. A non-zero initial stock is recorded as
// the first history entry.
func (s *MedicineApplicationService) CreateMedicine(ctx context.Context, cmd CreateMedicineCommand) (*MedicineDTO, error) {
	med := cmd.ToDomain()
	if err := med.Validate(); err != nil {
		return nil, toAppError(err, medicineResource, cmd.ID)
	}

	now := s.now()
	med.PrepareForCreate(now)
	if med.Stock > 0 && len(med.History) == 0 {
		med.History = []domain.StockHistoryEntry{
			domain.StockDelta{Quantity: med.Stock, Direction: domain.StockIncrease, Note: "Initial stock"}.NewEntry(now),
		}
	}

	if err := s.repo.Create(ctx, med); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to create medicine", "medicineId", med.ID)
		return nil, toAppError(err, medicineResource, med.ID)
	}

	s.events.record(ctx, "Medicine", med.ID, kafka.Topics.MedicineEvents,
		s.events.factory.MedicineEvent(ctx, cloudevents.MedicineCreated, toMedicineEventData(med)))
	s.logger.Audit(ctx, "create", medicineResource, med.ID, logging.UserIDFromContext(ctx), map[string]any{
		"name":  med.Name,
		"stock": med.Stock,
	})

	return ToMedicineDTO(med, s.lowStockThreshold), nil
}

// GetMedicine retrieves a medicine by id
func (s *MedicineApplicationService) GetMedicine(ctx context.Context, id string) (*MedicineDTO, error) {
	med, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, toAppError(err, medicineResource, id)
	}
	return ToMedicineDTO(med, s.lowStockThreshold), nil
}

// ListMedicines lists medicines, optionally filtered by category and name
func (s *MedicineApplicationService) ListMedicines(ctx context.Context, query ListMedicinesQuery) ([]MedicineDTO, error) {
	return s.list(ctx, domain.MedicineFilter{Category: query.Category, Search: query.Search})
}

// ListLowStock lists medicines at or below threshold, the configured default when nil
func (s *MedicineApplicationService) ListLowStock(ctx context.Context, threshold *int) ([]MedicineDTO, error) {
	limit := s.lowStockThreshold
	if threshold != nil {
		if *threshold < 0 {
			return nil, apperrors.ErrValidation("threshold must be a non-negative number")
		}
		limit = *threshold
	}

	medicines, err := s.list(ctx, domain.MedicineFilter{MaxStock: &limit})
	if err != nil {
		return nil, err
	}
	if threshold == nil && s.metrics != nil {
		s.metrics.SetLowStockMedicines(len(medicines))
	}
	return medicines, nil
}

func (s *MedicineApplicationService) list(ctx context.Context, filter domain.MedicineFilter) ([]MedicineDTO, error) {
	medicines, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list medicines")
		return nil, toAppError(err, medicineResource, "")
	}

	out := make([]MedicineDTO, 0, len(medicines))
	for _, med := range medicines {
		out = append(out, *ToMedicineDTO(med, s.lowStockThreshold))
	}
	return out, nil
}

// UpdateMedicine overwrites the provided fields only. Stock is never part
// of an update; use AdjustStock.
func (s *MedicineApplicationService) UpdateMedicine(ctx context.Context, cmd UpdateMedicineCommand) (*MedicineDTO, error) {
	patch := cmd.ToPatch()
	if err := patch.Validate(); err != nil {
		return nil, toAppError(err, medicineResource, cmd.MedicineID)
	}

	med, err := s.repo.Update(ctx, cmd.MedicineID, patch)
	if err != nil {
		return nil, toAppError(err, medicineResource, cmd.MedicineID)
	}

	if !patch.IsEmpty() {
		s.events.record(ctx, "Medicine", med.ID, kafka.Topics.MedicineEvents,
			s.events.factory.MedicineEvent(ctx, cloudevents.MedicineUpdated, toMedicineEventData(med)))
		s.logger.Audit(ctx, "update", medicineResource, med.ID, logging.UserIDFromContext(ctx), nil)
	}

	return ToMedicineDTO(med, s.lowStockThreshold), nil
}

// AdjustStock applies a manual stock change through the same primitive the
// order workflow uses
func (s *MedicineApplicationService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (*StockAdjustmentDTO, error) {
	delta := cmd.ToDelta()
	if err := delta.Validate(); err != nil {
		return nil, toAppError(err, medicineResource, cmd.MedicineID)
	}

	entry := delta.NewEntry(s.now())
	change, err := s.repo.ApplyStockDelta(ctx, cmd.MedicineID, entry)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordStockAdjustment(string(delta.Direction), "failed", 0)
		}
		return nil, toAppError(err, medicineResource, cmd.MedicineID)
	}

	med := change.Medicine
	s.logger.StockAdjustment(ctx, med.ID, string(entry.Type), entry.Quantity, change.PreviousStock, med.Stock, entry.Note)
	if s.metrics != nil {
		s.metrics.RecordStockAdjustment(string(entry.Type), string(domain.ItemApplied), change.Moved())
	}
	s.events.record(ctx, "Medicine", med.ID, kafka.Topics.MedicineEvents,
		s.events.factory.StockAdjustedEvent(ctx, cloudevents.StockAdjustedData{
			MedicineID:  med.ID,
			Direction:   string(entry.Type),
			Requested:   entry.Quantity,
			PreviousQty: change.PreviousStock,
			NewQty:      med.Stock,
			Note:        entry.Note,
		}))

	return &StockAdjustmentDTO{
		Medicine:      *ToMedicineDTO(med, s.lowStockThreshold),
		PreviousStock: change.PreviousStock,
		Moved:         change.Moved(),
	}, nil
}

// DeleteMedicine removes a medicine. Orders referencing it keep their snapshot.
func (s *MedicineApplicationService) DeleteMedicine(ctx context.Context, id string) error {
	med, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return toAppError(err, medicineResource, id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return toAppError(err, medicineResource, id)
	}

	s.events.record(ctx, "Medicine", id, kafka.Topics.MedicineEvents,
		s.events.factory.MedicineEvent(ctx, cloudevents.MedicineDeleted, toMedicineEventData(med)))
	s.logger.Audit(ctx, "delete", medicineResource, id, logging.UserIDFromContext(ctx), nil)
	return nil
}

// ExportInventory renders every medicine into a workbook
func (s *MedicineApplicationService) ExportInventory(ctx context.Context) (*InventoryExport, error) {
	if s.exporter == nil {
		return nil, apperrors.ErrServiceUnavailable("inventory export")
	}

	medicines, err := s.repo.FindAll(ctx, domain.MedicineFilter{})
	if err != nil {
		return nil, toAppError(err, medicineResource, "")
	}

	now := s.now()
	var buf bytes.Buffer
	if err := s.exporter.WriteInventory(&buf, medicines, now); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to render inventory export")
		return nil, apperrors.ErrInternal("failed to render inventory export").Wrap(err)
	}

	s.logger.Audit(ctx, "export", medicineResource, "", logging.UserIDFromContext(ctx), map[string]any{
		"medicines": len(medicines),
		"bytes":     buf.Len(),
	})

	return &InventoryExport{
		FileName:    s.exporter.FileName(now),
		ContentType: s.exporter.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}
