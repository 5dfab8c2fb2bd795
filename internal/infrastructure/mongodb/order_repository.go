package mongodb

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	pmongo "github.com/pharmacy-platform/pharmacy-service/pkg/mongodb"
)

// OrdersCollection is the collection holding order documents
const OrdersCollection = "orders"

// OrderRepository implements domain.OrderRepository using MongoDB
type OrderRepository struct {
	collection *pmongo.InstrumentedCollection
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(client *pmongo.InstrumentedClient) *OrderRepository {
	return &OrderRepository{collection: client.Collection(OrdersCollection)}
}

// EnsureIndexes creates the unique id indexes and the listing indexes.
// orderId is the legacy key and stays sparse.
func (r *OrderRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_id_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetName("idx_orderId_unique").SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "orderDate", Value: -1}},
			Options: options.Index().SetName("idx_userId_orderDate"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "orderDate", Value: -1}},
			Options: options.Index().SetName("idx_status_orderDate"),
		},
	}
	if err := r.collection.CreateIndexes(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}

// Create inserts a new order
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if err := r.collection.InsertOne(ctx, order); err != nil {
		if pmongo.IsDuplicateKey(err) {
			return fmt.Errorf("order %s: %w", order.ID, domain.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// FindByID retrieves an order by its id
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	if err := r.collection.FindOne(ctx, bson.M{"id": id}, &order); err != nil {
		if pmongo.IsNotFound(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &order, nil
}

// FindAll retrieves all orders, newest first
func (r *OrderRepository) FindAll(ctx context.Context) ([]*domain.Order, error) {
	return r.findMany(ctx, bson.M{})
}

// FindByUserID retrieves the orders of a user. Stored ids are compared as
// trimmed strings so legacy numeric or padded values still match.
func (r *OrderRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	filter := bson.M{"$expr": bson.M{"$eq": bson.A{
		bson.M{"$trim": bson.M{"input": bson.M{"$toString": "$userId"}}},
		strings.TrimSpace(userID),
	}}}
	return r.findMany(ctx, filter)
}

func (r *OrderRepository) findMany(ctx context.Context, filter bson.M) ([]*domain.Order, error) {
	opts := options.Find().SetSort(append(pmongo.SortDescending("orderDate"), pmongo.SortDescending("_id")...))

	orders := []*domain.Order{}
	if err := r.collection.Find(ctx, filter, &orders, opts); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// TransitionStatus saves the status of order only while the stored status
// is still from. Total and orderId are rederived in the same write.
func (r *OrderRepository) TransitionStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) (*domain.Order, error) {
	filter := bson.M{"id": order.ID, "status": from}
	update := savePipeline(bson.M{
		"status":         order.Status,
		"completionDate": order.CompletionDate,
		"updatedAt":      order.UpdatedAt,
	})
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var saved domain.Order
	err := r.collection.FindOneAndUpdate(ctx, filter, update, &saved, opts)
	if err == nil {
		return &saved, nil
	}
	if !pmongo.IsNotFound(err) {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if _, findErr := r.FindByID(ctx, order.ID); findErr != nil {
		return nil, findErr
	}
	return nil, fmt.Errorf("order %s is no longer %s: %w", order.ID, from, domain.ErrConcurrentStatusChange)
}

// UpdateNotes replaces the notes of an order
func (r *OrderRepository) UpdateNotes(ctx context.Context, id, notes string) (*domain.Order, error) {
	update := savePipeline(bson.M{
		"notes":     bson.M{"$literal": notes},
		"updatedAt": pmongo.Now(),
	})
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var saved domain.Order
	if err := r.collection.FindOneAndUpdate(ctx, bson.M{"id": id}, update, &saved, opts); err != nil {
		if pmongo.IsNotFound(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to update order notes: %w", err)
	}
	return &saved, nil
}

// savePipeline adds the derived fields every order write keeps in sync
func savePipeline(set bson.M) mongo.Pipeline {
	set["total"] = bson.M{"$sum": bson.M{"$ifNull": bson.A{"$items.quantity", bson.A{}}}}
	set["orderId"] = "$id"
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

// Delete removes an order
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	deleted, err := r.collection.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if deleted == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

type statusCount struct {
	Status domain.OrderStatus `bson:"_id"`
	Count  int64              `bson:"count"`
}

// CountByStatus counts orders per status
func (r *OrderRepository) CountByStatus(ctx context.Context) (domain.StatusCounts, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}

	var rows []statusCount
	if err := r.collection.Aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}

	counts := domain.StatusCounts{}
	for _, status := range domain.AllStatuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// SumUnits sums the total of orders in status
func (r *OrderRepository) SumUnits(ctx context.Context, status domain.OrderStatus) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": status}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "units": bson.M{"$sum": "$total"}}}},
	}

	var rows []struct {
		Units int64 `bson:"units"`
	}
	if err := r.collection.Aggregate(ctx, pipeline, &rows); err != nil {
		return 0, fmt.Errorf("failed to sum order units: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Units, nil
}
