package mongodb

import (
	"context"
	"time"

	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
	"github.com/pharmacy-platform/pharmacy-service/pkg/resilience"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedClient hands out collections whose operations are traced,
// measured, logged and guarded by a shared circuit breaker
type InstrumentedClient struct {
	client  *Client
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
	breaker *resilience.CircuitBreaker
}

// NewInstrumentedClient creates a new instrumented MongoDB client
func NewInstrumentedClient(client *Client, m *metrics.Metrics, logger *logging.Logger) *InstrumentedClient {
	cbConfig := resilience.DefaultCircuitBreakerConfig("mongodb")
	cbConfig.IsSuccessful = isExpected
	if m != nil {
		cbConfig.OnStateChange = resilience.RecordStateChanges(m)
	}

	var breakerLogger *logging.Logger
	if logger != nil {
		breakerLogger = logger.WithComponent("mongodb")
	} else {
		breakerLogger = logging.NewNop()
	}

	return &InstrumentedClient{
		client:  client,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("mongodb"),
		breaker: resilience.NewCircuitBreaker(cbConfig, breakerLogger.Logger),
	}
}

// Collection returns an instrumented collection
func (c *InstrumentedClient) Collection(name string) *InstrumentedCollection {
	return &InstrumentedCollection{
		collection: c.client.Collection(name),
		name:       name,
		database:   c.client.DatabaseName(),
		metrics:    c.metrics,
		logger:     c.logger,
		tracer:     c.tracer,
		breaker:    c.breaker,
	}
}

// Close disconnects the client
func (c *InstrumentedClient) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// HealthCheck pings the database inside a span
func (c *InstrumentedClient) HealthCheck(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "mongodb.ping",
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(c.client.DatabaseName()),
		),
	)
	defer span.End()

	err := c.client.HealthCheck(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// InstrumentedCollection wraps a MongoDB collection. Read operations decode
// straight into the caller's value so the breaker sees the real outcome.
type InstrumentedCollection struct {
	collection *mongo.Collection
	name       string
	database   string
	metrics    *metrics.Metrics
	logger     *logging.Logger
	tracer     trace.Tracer
	breaker    *resilience.CircuitBreaker
}

func (c *InstrumentedCollection) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(c.database),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.collection", c.name),
		),
	)
	defer span.End()

	call := func() error { return fn(ctx) }
	var err error
	if c.breaker != nil {
		err = c.breaker.Run(ctx, call)
	} else {
		err = call()
	}

	duration := time.Since(start)
	success := isExpected(err)
	if c.metrics != nil {
		c.metrics.RecordMongoDBOperation(c.name, operation, success, duration)
	}
	if c.logger != nil {
		c.logger.DatabaseQuery(ctx, c.name, operation, duration, success)
	}

	if !success {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// InsertOne inserts a single document
func (c *InstrumentedCollection) InsertOne(ctx context.Context, document interface{}) error {
	return c.do(ctx, "insertOne", func(ctx context.Context) error {
		_, err := c.collection.InsertOne(ctx, document)
		return err
	})
}

// FindOne decodes the first matching document into result
func (c *InstrumentedCollection) FindOne(ctx context.Context, filter, result interface{}, opts ...*options.FindOneOptions) error {
	return c.do(ctx, "findOne", func(ctx context.Context) error {
		return c.collection.FindOne(ctx, filter, opts...).Decode(result)
	})
}

// Find decodes every matching document into results, which must be a slice pointer
func (c *InstrumentedCollection) Find(ctx context.Context, filter, results interface{}, opts ...*options.FindOptions) error {
	return c.do(ctx, "find", func(ctx context.Context) error {
		cursor, err := c.collection.Find(ctx, filter, opts...)
		if err != nil {
			return err
		}
		return cursor.All(ctx, results)
	})
}

// UpdateOne updates a single document
func (c *InstrumentedCollection) UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	var result *mongo.UpdateResult
	err := c.do(ctx, "updateOne", func(ctx context.Context) error {
		var err error
		result, err = c.collection.UpdateOne(ctx, filter, update, opts...)
		return err
	})
	return result, err
}

// FindOneAndUpdate applies update and decodes the document selected by opts into result
func (c *InstrumentedCollection) FindOneAndUpdate(ctx context.Context, filter, update, result interface{}, opts ...*options.FindOneAndUpdateOptions) error {
	return c.do(ctx, "findOneAndUpdate", func(ctx context.Context) error {
		return c.collection.FindOneAndUpdate(ctx, filter, update, opts...).Decode(result)
	})
}

// DeleteOne deletes a single document and returns the number removed
func (c *InstrumentedCollection) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	var deleted int64
	err := c.do(ctx, "deleteOne", func(ctx context.Context) error {
		res, err := c.collection.DeleteOne(ctx, filter)
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	return deleted, err
}

// CountDocuments counts matching documents
func (c *InstrumentedCollection) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	var count int64
	err := c.do(ctx, "countDocuments", func(ctx context.Context) error {
		var err error
		count, err = c.collection.CountDocuments(ctx, filter)
		return err
	})
	return count, err
}

// Aggregate runs a pipeline and decodes all results
func (c *InstrumentedCollection) Aggregate(ctx context.Context, pipeline, results interface{}) error {
	return c.do(ctx, "aggregate", func(ctx context.Context) error {
		cursor, err := c.collection.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		return cursor.All(ctx, results)
	})
}

// CreateIndexes creates the given indexes
func (c *InstrumentedCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) error {
	return c.do(ctx, "createIndexes", func(ctx context.Context) error {
		_, err := c.collection.Indexes().CreateMany(ctx, models)
		return err
	})
}

// Name returns the collection name
func (c *InstrumentedCollection) Name() string {
	return c.name
}
