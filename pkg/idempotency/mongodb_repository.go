package idempotency

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pmongo "github.com/pharmacy-platform/pharmacy-service/pkg/mongodb"
)

// KeysCollection holds idempotency keys
const KeysCollection = "idempotency_keys"

// MongoKeyRepository implements KeyRepository using MongoDB
type MongoKeyRepository struct {
	collection *pmongo.InstrumentedCollection
}

// NewMongoKeyRepository creates a new MongoDB-backed key repository
func NewMongoKeyRepository(client *pmongo.InstrumentedClient) *MongoKeyRepository {
	return &MongoKeyRepository{collection: client.Collection(KeysCollection)}
}

func keyFilter(key *IdempotencyKey) bson.M {
	return bson.M{
		"serviceId": key.ServiceID,
		"userId":    key.UserID,
		"key":       key.Key,
	}
}

// AcquireLock upserts the key. With ReturnDocument Before a fresh insert
// comes back as no document, which is how a new key is told apart.
func (r *MongoKeyRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	key.ID = primitive.NewObjectID()
	key.LockedAt = &now

	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":                key.ID,
			"key":                key.Key,
			"serviceId":          key.ServiceID,
			"userId":             key.UserID,
			"requestPath":        key.RequestPath,
			"requestMethod":      key.RequestMethod,
			"requestFingerprint": key.RequestFingerprint,
			"lockedAt":           now,
			"createdAt":          key.CreatedAt,
			"expiresAt":          key.ExpiresAt,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var existing IdempotencyKey
	err := r.collection.FindOneAndUpdate(ctx, keyFilter(key), update, &existing, opts)
	switch {
	case err == nil:
		return &existing, false, nil
	case pmongo.IsNotFound(err):
		return key, true, nil
	case pmongo.IsDuplicateKey(err):
		// a concurrent upsert inserted first
		if err := r.collection.FindOne(ctx, keyFilter(key), &existing); err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	default:
		return nil, false, err
	}
}

// ReleaseLock deletes an uncompleted key
func (r *MongoKeyRepository) ReleaseLock(ctx context.Context, key *IdempotencyKey) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":         key.ID,
		"completedAt": bson.M{"$exists": false},
	})
	return err
}

// RefreshLock moves lockedAt forward if nobody else took the key over since it was read
func (r *MongoKeyRepository) RefreshLock(ctx context.Context, key *IdempotencyKey) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	filter := bson.M{
		"_id":         key.ID,
		"lockedAt":    key.LockedAt,
		"completedAt": bson.M{"$exists": false},
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"lockedAt": now}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrConcurrentRequest
	}
	key.LockedAt = &now
	return nil
}

// StoreResponse stores the final response for a completed request
func (r *MongoKeyRepository) StoreResponse(ctx context.Context, key *IdempotencyKey, responseCode int, responseBody []byte, headers map[string]string) error {
	update := bson.M{
		"$set": bson.M{
			"responseCode":    responseCode,
			"responseBody":    responseBody,
			"responseHeaders": headers,
			"completedAt":     time.Now().UTC(),
		},
		"$unset": bson.M{"lockedAt": ""},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": key.ID}, update)
	return err
}

// EnsureIndexes creates the unique scope index and the TTL index that
// expires old keys
func (r *MongoKeyRepository) EnsureIndexes(ctx context.Context) error {
	return r.collection.CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "serviceId", Value: 1},
				{Key: "userId", Value: 1},
				{Key: "key", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_service_user_key"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
	})
}
