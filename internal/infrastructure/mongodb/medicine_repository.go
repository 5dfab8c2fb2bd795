package mongodb

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	pmongo "github.com/pharmacy-platform/pharmacy-service/pkg/mongodb"
)

// MedicinesCollection is the collection holding medicine documents
const MedicinesCollection = "medicines"

// MedicineRepository implements domain.MedicineRepository using MongoDB
type MedicineRepository struct {
	collection *pmongo.InstrumentedCollection
}

// NewMedicineRepository creates a new MedicineRepository
func NewMedicineRepository(client *pmongo.InstrumentedClient) *MedicineRepository {
	return &MedicineRepository{collection: client.Collection(MedicinesCollection)}
}

// EnsureIndexes creates the unique id index and the listing indexes
func (r *MedicineRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetName("idx_category_name"),
		},
		{
			Keys:    bson.D{{Key: "stock", Value: 1}},
			Options: options.Index().SetName("idx_stock"),
		},
	}
	if err := r.collection.CreateIndexes(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create medicine indexes: %w", err)
	}
	return nil
}

// Create inserts a new medicine
func (r *MedicineRepository) Create(ctx context.Context, medicine *domain.Medicine) error {
	if err := r.collection.InsertOne(ctx, medicine); err != nil {
		if pmongo.IsDuplicateKey(err) {
			return fmt.Errorf("medicine %s: %w", medicine.ID, domain.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create medicine: %w", err)
	}
	return nil
}

// FindByID retrieves a medicine by its id
func (r *MedicineRepository) FindByID(ctx context.Context, id string) (*domain.Medicine, error) {
	var medicine domain.Medicine
	if err := r.collection.FindOne(ctx, bson.M{"id": id}, &medicine); err != nil {
		if pmongo.IsNotFound(err) {
			return nil, domain.ErrMedicineNotFound
		}
		return nil, fmt.Errorf("failed to find medicine: %w", err)
	}
	return &medicine, nil
}

// FindAll retrieves medicines matching the filter, sorted by name
func (r *MedicineRepository) FindAll(ctx context.Context, filter domain.MedicineFilter) ([]*domain.Medicine, error) {
	query := bson.M{}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Search != "" {
		query["name"] = bson.M{"$regex": regexp.QuoteMeta(filter.Search), "$options": "i"}
	}
	if filter.MaxStock != nil {
		query["stock"] = bson.M{"$lte": *filter.MaxStock}
	}

	opts := options.Find().SetSort(pmongo.SortAscending("name"))

	medicines := []*domain.Medicine{}
	if err := r.collection.Find(ctx, query, &medicines, opts); err != nil {
		return nil, fmt.Errorf("failed to list medicines: %w", err)
	}
	return medicines, nil
}

// Update overwrites only the fields set in patch
func (r *MedicineRepository) Update(ctx context.Context, id string, patch domain.MedicinePatch) (*domain.Medicine, error) {
	if patch.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	set := bson.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Origin != nil {
		set["origin"] = *patch.Origin
	}
	if patch.VialName != nil {
		set["vialName"] = *patch.VialName
	}
	if patch.ExpDate != nil {
		set["expDate"] = *patch.ExpDate
	}
	if patch.Image != nil {
		set["image"] = *patch.Image
	}
	if patch.Notes != nil {
		set["notes"] = *patch.Notes
	}
	if patch.CreatedDate != nil {
		set["createdDate"] = *patch.CreatedDate
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var medicine domain.Medicine
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"id": id}, pmongo.BuildUpdateWithTimestamp(set), &medicine, opts)
	if err != nil {
		if pmongo.IsNotFound(err) {
			return nil, domain.ErrMedicineNotFound
		}
		return nil, fmt.Errorf("failed to update medicine: %w", err)
	}
	return &medicine, nil
}

// ApplyStockDelta applies entry in a single document write. The pipeline
// evaluates the clamp and the history prepend against the stored document,
// so concurrent deltas on one medicine never interleave within a write.
func (r *MedicineRepository) ApplyStockDelta(ctx context.Context, id string, entry domain.StockHistoryEntry) (*domain.StockChange, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before domain.Medicine
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"id": id}, stockDeltaPipeline(entry), &before, opts)
	if err != nil {
		if pmongo.IsNotFound(err) {
			return nil, domain.ErrMedicineNotFound
		}
		return nil, fmt.Errorf("failed to apply stock delta: %w", err)
	}

	previous := before.Stock
	after := before
	after.ApplyStockEntry(entry)

	return &domain.StockChange{Medicine: &after, PreviousStock: previous}, nil
}

// stockDeltaPipeline mirrors domain.NextStock as an update pipeline
func stockDeltaPipeline(entry domain.StockHistoryEntry) mongo.Pipeline {
	history := bson.M{"$ifNull": bson.A{"$history", bson.A{}}}
	stock := bson.M{"$ifNull": bson.A{"$stock", 0}}

	var next bson.M
	if entry.Type == domain.StockIncrease {
		next = bson.M{"$add": bson.A{stock, entry.Quantity}}
	} else {
		next = bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{stock, entry.Quantity}}}}
	}

	seedOnly := bson.M{"$and": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$size": history}, 0}},
		bson.M{"$eq": bson.A{entry.Quantity, 0}},
	}}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"stock":     bson.M{"$cond": bson.A{seedOnly, stock, next}},
			"history":   bson.M{"$concatArrays": bson.A{bson.A{bson.M{"$literal": entry}}, history}},
			"updatedAt": entry.Date,
		}}},
	}
}

// Delete removes a medicine
func (r *MedicineRepository) Delete(ctx context.Context, id string) error {
	deleted, err := r.collection.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete medicine: %w", err)
	}
	if deleted == 0 {
		return domain.ErrMedicineNotFound
	}
	return nil
}

// CountLowStock counts medicines with stock at or below threshold
func (r *MedicineRepository) CountLowStock(ctx context.Context, threshold int) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"stock": bson.M{"$lte": threshold}})
	if err != nil {
		return 0, fmt.Errorf("failed to count low stock medicines: %w", err)
	}
	return count, nil
}
