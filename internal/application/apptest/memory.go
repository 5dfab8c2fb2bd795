// Package apptest provides in-memory repositories for tests of the
// application and api layers.
package apptest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	"github.com/pharmacy-platform/pharmacy-service/pkg/cloudevents"
)

// MedicineRepository is an in-memory domain.MedicineRepository
type MedicineRepository struct {
	mu        sync.Mutex
	medicines map[string]*domain.Medicine

	// ApplyErrors makes ApplyStockDelta fail for the given medicine ids
	ApplyErrors map[string]error
}

// NewMedicineRepository creates a repository seeded with meds
func NewMedicineRepository(meds ...*domain.Medicine) *MedicineRepository {
	r := &MedicineRepository{
		medicines:   map[string]*domain.Medicine{},
		ApplyErrors: map[string]error{},
	}
	for _, m := range meds {
		r.medicines[m.ID] = copyMedicine(m)
	}
	return r
}

func copyMedicine(m *domain.Medicine) *domain.Medicine {
	c := *m
	c.History = append([]domain.StockHistoryEntry{}, m.History...)
	return &c
}

// Create inserts a medicine
func (r *MedicineRepository) Create(_ context.Context, medicine *domain.Medicine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.medicines[medicine.ID]; exists {
		return fmt.Errorf("medicine %s: %w", medicine.ID, domain.ErrDuplicateKey)
	}
	r.medicines[medicine.ID] = copyMedicine(medicine)
	return nil
}

// FindByID retrieves a medicine
func (r *MedicineRepository) FindByID(_ context.Context, id string) (*domain.Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.medicines[id]
	if !ok {
		return nil, domain.ErrMedicineNotFound
	}
	return copyMedicine(m), nil
}

// FindAll lists medicines matching filter sorted by name
func (r *MedicineRepository) FindAll(_ context.Context, filter domain.MedicineFilter) ([]*domain.Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Medicine{}
	for _, m := range r.medicines {
		if filter.Matches(m) {
			out = append(out, copyMedicine(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update applies patch
func (r *MedicineRepository) Update(_ context.Context, id string, patch domain.MedicinePatch) (*domain.Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.medicines[id]
	if !ok {
		return nil, domain.ErrMedicineNotFound
	}
	patch.Apply(m)
	return copyMedicine(m), nil
}

// ApplyStockDelta applies entry the same way the Mongo pipeline does
func (r *MedicineRepository) ApplyStockDelta(_ context.Context, id string, entry domain.StockHistoryEntry) (*domain.StockChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ApplyErrors[id]; err != nil {
		return nil, err
	}
	m, ok := r.medicines[id]
	if !ok {
		return nil, domain.ErrMedicineNotFound
	}
	previous := m.Stock
	m.ApplyStockEntry(entry)
	return &domain.StockChange{Medicine: copyMedicine(m), PreviousStock: previous}, nil
}

// Delete removes a medicine
func (r *MedicineRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.medicines[id]; !ok {
		return domain.ErrMedicineNotFound
	}
	delete(r.medicines, id)
	return nil
}

// CountLowStock counts medicines at or below threshold
func (r *MedicineRepository) CountLowStock(_ context.Context, threshold int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.medicines {
		if m.IsLowStock(threshold) {
			n++
		}
	}
	return n, nil
}

// Stock returns the stored stock of id, -1 when missing
func (r *MedicineRepository) Stock(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.medicines[id]; ok {
		return m.Stock
	}
	return -1
}

// OrderRepository is an in-memory domain.OrderRepository
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	seq    []string
}

// NewOrderRepository creates a repository seeded with orders
func NewOrderRepository(orders ...*domain.Order) *OrderRepository {
	r := &OrderRepository{orders: map[string]*domain.Order{}}
	for _, o := range orders {
		r.orders[o.ID] = copyOrder(o)
		r.seq = append(r.seq, o.ID)
	}
	return r
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem{}, o.Items...)
	if o.CompletionDate != nil {
		t := *o.CompletionDate
		c.CompletionDate = &t
	}
	return &c
}

// Create inserts an order
func (r *OrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("order %s: %w", order.ID, domain.ErrDuplicateKey)
	}
	r.orders[order.ID] = copyOrder(order)
	r.seq = append(r.seq, order.ID)
	return nil
}

// FindByID retrieves an order
func (r *OrderRepository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

// FindAll lists orders newest first
func (r *OrderRepository) FindAll(_ context.Context) ([]*domain.Order, error) {
	return r.list(func(*domain.Order) bool { return true }), nil
}

// FindByUserID lists the orders of userID using trimmed equality
func (r *OrderRepository) FindByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	return r.list(func(o *domain.Order) bool { return o.BelongsTo(userID) }), nil
}

func (r *OrderRepository) list(keep func(*domain.Order) bool) []*domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Order{}
	for i := len(r.seq) - 1; i >= 0; i-- {
		if o, ok := r.orders[r.seq[i]]; ok && keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

// TransitionStatus saves the status while the stored one still equals from
func (r *OrderRepository) TransitionStatus(_ context.Context, order *domain.Order, from domain.OrderStatus) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if stored.Status != from {
		return nil, fmt.Errorf("order %s is no longer %s: %w", order.ID, from, domain.ErrConcurrentStatusChange)
	}
	stored.Status = order.Status
	stored.CompletionDate = order.CompletionDate
	stored.PrepareForSave(order.UpdatedAt)
	return copyOrder(stored), nil
}

// UpdateNotes replaces the notes of an order
func (r *OrderRepository) UpdateNotes(_ context.Context, id, notes string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o.Notes = notes
	o.RecomputeTotal()
	return copyOrder(o), nil
}

// Delete removes an order
func (r *OrderRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.orders, id)
	return nil
}

// CountByStatus counts orders per status
func (r *OrderRepository) CountByStatus(_ context.Context) (domain.StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := domain.StatusCounts{}
	for _, s := range domain.AllStatuses {
		counts[s] = 0
	}
	for _, o := range r.orders {
		counts[o.Status]++
	}
	return counts, nil
}

// SumUnits sums the totals of orders in status
func (r *OrderRepository) SumUnits(_ context.Context, status domain.OrderStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var units int64
	for _, o := range r.orders {
		if o.Status == status {
			units += int64(o.Total)
		}
	}
	return units, nil
}

// Recorder captures recorded outbox events
type Recorder struct {
	mu     sync.Mutex
	Events []*cloudevents.PharmacyCloudEvent
	Topics []string
}

// Record appends events
func (r *Recorder) Record(_ context.Context, _, _, topic string, events ...*cloudevents.PharmacyCloudEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		r.Events = append(r.Events, e)
		r.Topics = append(r.Topics, topic)
	}
	return nil
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		types = append(types, e.Type)
	}
	return types
}

// Count returns how many events of eventType were recorded
func (r *Recorder) Count(eventType string) int {
	n := 0
	for _, t := range r.Types() {
		if strings.EqualFold(t, eventType) {
			n++
		}
	}
	return n
}
