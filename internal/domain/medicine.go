package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StockDirection is the direction of a stock change
type StockDirection string

const (
	StockIncrease StockDirection = "increase"
	StockDecrease StockDirection = "decrease"
)

// IsValid checks if the direction is valid
func (d StockDirection) IsValid() bool {
	return d == StockIncrease || d == StockDecrease
}

// DefaultNote returns the history note used when the caller gives none
func (d StockDirection) DefaultNote() string {
	if d == StockIncrease {
		return "Stock added"
	}
	return "Stock removed"
}

// Medicine is an inventory item with a stock count and an audit history.
// Stock and History change only through ApplyStockEntry.
type Medicine struct {
	InternalID  primitive.ObjectID  `bson:"_id,omitempty" json:"-"`
	ID          string              `bson:"id" json:"id"`
	Name        string              `bson:"name" json:"name"`
	Category    string              `bson:"category" json:"category"`
	Origin      string              `bson:"origin" json:"origin"`
	Stock       int                 `bson:"stock" json:"stock"`
	VialName    string              `bson:"vialName,omitempty" json:"vialName,omitempty"`
	ExpDate     *time.Time          `bson:"expDate,omitempty" json:"expDate,omitempty"`
	History     []StockHistoryEntry `bson:"history" json:"history"`
	Image       string              `bson:"image,omitempty" json:"image,omitempty"`
	Notes       string              `bson:"notes" json:"notes"`
	CreatedDate string              `bson:"createdDate,omitempty" json:"createdDate,omitempty"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// StockHistoryEntry is one immutable record of a stock change. Quantity is
// the requested magnitude, not the clamped outcome.
type StockHistoryEntry struct {
	ID       string         `bson:"id" json:"id"`
	Date     time.Time      `bson:"date" json:"date"`
	Quantity int            `bson:"quantity" json:"quantity"`
	Type     StockDirection `bson:"type" json:"type"`
	Note     string         `bson:"note" json:"note"`
}

// StockDelta is a requested stock change
type StockDelta struct {
	Quantity  int
	Direction StockDirection
	Note      string
}

// Validate checks the delta can be applied
func (d StockDelta) Validate() error {
	if d.Quantity < 0 {
		return ErrNegativeQuantity
	}
	if !d.Direction.IsValid() {
		return ErrInvalidDirection
	}
	return nil
}

// NewEntry builds the history entry recorded for this delta
func (d StockDelta) NewEntry(now time.Time) StockHistoryEntry {
	note := strings.TrimSpace(d.Note)
	if note == "" {
		note = d.Direction.DefaultNote()
	}
	return StockHistoryEntry{
		ID:       "hist-" + uuid.NewString(),
		Date:     now,
		Quantity: d.Quantity,
		Type:     d.Direction,
		Note:     note,
	}
}

// NextStock computes the stock after applying quantity in direction.
// Decreases clamp at zero. A medicine with no history that receives a zero
// quantity keeps its stock; that entry only seeds the log.
func NextStock(current, historyLen, quantity int, direction StockDirection) int {
	if historyLen == 0 && quantity == 0 {
		return current
	}
	if direction == StockIncrease {
		return current + quantity
	}
	next := current - quantity
	if next < 0 {
		return 0
	}
	return next
}

// ApplyStockEntry applies entry to the stock and prepends it to the history
func (m *Medicine) ApplyStockEntry(entry StockHistoryEntry) {
	m.Stock = NextStock(m.Stock, len(m.History), entry.Quantity, entry.Type)
	m.History = append([]StockHistoryEntry{entry}, m.History...)
	m.UpdatedAt = entry.Date
}

// Validate checks required medicine fields
func (m *Medicine) Validate() error {
	switch {
	case strings.TrimSpace(m.ID) == "":
		return fieldError("id")
	case strings.TrimSpace(m.Name) == "":
		return fieldError("name")
	case strings.TrimSpace(m.Category) == "":
		return fieldError("category")
	case strings.TrimSpace(m.Origin) == "":
		return fieldError("origin")
	case m.Stock < 0:
		return ErrNegativeQuantity
	}
	return nil
}

// PrepareForCreate fills server defaults before the first save
func (m *Medicine) PrepareForCreate(now time.Time) {
	if m.History == nil {
		m.History = []StockHistoryEntry{}
	}
	if m.CreatedDate == "" {
		m.CreatedDate = now.Format("2006-01-02")
	}
	m.CreatedAt = now
	m.UpdatedAt = now
}

// IsLowStock reports whether stock is at or below threshold
func (m *Medicine) IsLowStock(threshold int) bool {
	return m.Stock <= threshold
}

// StockChange is the outcome of an applied stock delta
type StockChange struct {
	Medicine      *Medicine
	PreviousStock int
}

// Moved returns the number of units actually added or removed
func (c *StockChange) Moved() int {
	diff := c.Medicine.Stock - c.PreviousStock
	if diff < 0 {
		return -diff
	}
	return diff
}

// MedicinePatch holds the fields of a partial medicine update. Nil fields
// keep their stored value. Stock is deliberately absent.
type MedicinePatch struct {
	Name        *string
	Category    *string
	Origin      *string
	VialName    *string
	ExpDate     *time.Time
	Image       *string
	Notes       *string
	CreatedDate *string
}

// IsEmpty reports whether the patch changes nothing
func (p MedicinePatch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.Origin == nil && p.VialName == nil &&
		p.ExpDate == nil && p.Image == nil && p.Notes == nil && p.CreatedDate == nil
}

// Validate rejects blanking a required field
func (p MedicinePatch) Validate() error {
	required := []struct {
		field string
		value *string
	}{
		{"name", p.Name},
		{"category", p.Category},
		{"origin", p.Origin},
	}
	for _, r := range required {
		if r.value != nil && strings.TrimSpace(*r.value) == "" {
			return fieldError(r.field)
		}
	}
	return nil
}

// Apply copies the set fields onto m
func (p MedicinePatch) Apply(m *Medicine) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Category != nil {
		m.Category = *p.Category
	}
	if p.Origin != nil {
		m.Origin = *p.Origin
	}
	if p.VialName != nil {
		m.VialName = *p.VialName
	}
	if p.ExpDate != nil {
		m.ExpDate = p.ExpDate
	}
	if p.Image != nil {
		m.Image = *p.Image
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
	if p.CreatedDate != nil {
		m.CreatedDate = *p.CreatedDate
	}
}

// MedicineFilter narrows a medicine listing
type MedicineFilter struct {
	Category string
	Search   string // case-insensitive substring of the name
	MaxStock *int
}

// Matches reports whether m passes the filter
func (f MedicineFilter) Matches(m *Medicine) bool {
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(f.Search)) {
		return false
	}
	if f.MaxStock != nil && m.Stock > *f.MaxStock {
		return false
	}
	return true
}

// MissingFieldError names the required field that was empty
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return e.Field + " is required"
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

func fieldError(field string) error {
	return &MissingFieldError{Field: field}
}
