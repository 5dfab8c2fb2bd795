package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pharmacy-platform/pharmacy-service/pkg/cloudevents"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu     sync.Mutex
	events map[string]*OutboxEvent
	order  []string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{events: make(map[string]*OutboxEvent)}
}

func (r *memoryRepo) Save(_ context.Context, event *OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.ID] = event
	r.order = append(r.order, event.ID)
	return nil
}

func (r *memoryRepo) FindUnpublished(_ context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OutboxEvent
	for _, id := range r.order {
		e := r.events[id]
		if e.ShouldRetry() && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkPublished(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.events[eventID].PublishedAt = &now
	return nil
}

func (r *memoryRepo) IncrementRetry(_ context.Context, eventID string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventID].RetryCount++
	r.events[eventID].LastError = errorMsg
	return nil
}

func (r *memoryRepo) CountPending(ctx context.Context) (int64, error) {
	events, _ := r.FindUnpublished(ctx, 1<<30)
	return int64(len(events)), nil
}

type recordingProducer struct {
	mu       sync.Mutex
	failType string
	sent     []*cloudevents.PharmacyCloudEvent
	topics   []string
}

func (p *recordingProducer) PublishEvent(_ context.Context, topic string, event *cloudevents.PharmacyCloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.Type == p.failType {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, event)
	p.topics = append(p.topics, topic)
	return nil
}

func newTestPublisher(repo Repository, producer EventPublisher) *Publisher {
	return NewPublisher(repo, producer, logging.NewNop(), metrics.New(metrics.DefaultConfig("test")), &PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})
}

func TestWriterAndPublisher_DeliverRecordedEvents(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	producer := &recordingProducer{}
	factory := cloudevents.NewEventFactory(cloudevents.SourceOrders)

	event := factory.OrderCreatedEvent(ctx, cloudevents.OrderCreatedData{OrderID: "ORD1", UserID: "u1", Total: 3})
	require.NoError(t, NewWriter(repo).Record(ctx, "Order", "ORD1", "pharmacy.orders", event))

	published := newTestPublisher(repo, producer).ProcessBatch(ctx)

	assert.Equal(t, 1, published)
	require.Len(t, producer.sent, 1)
	assert.Equal(t, event.ID, producer.sent[0].ID)
	assert.Equal(t, cloudevents.OrderCreated, producer.sent[0].Type)
	assert.Equal(t, "pharmacy.orders", producer.topics[0])

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestPublisher_FailedEventIsRetriedUntilExhausted(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	producer := &recordingProducer{failType: cloudevents.OrderDeleted}
	factory := cloudevents.NewEventFactory(cloudevents.SourceOrders)

	bad := factory.CreateEvent(ctx, cloudevents.OrderDeleted, "order/ORD2", cloudevents.OrderData{OrderID: "ORD2"})
	require.NoError(t, NewWriter(repo).Record(ctx, "Order", "ORD2", "pharmacy.orders", bad))

	publisher := newTestPublisher(repo, producer)
	for i := 0; i < DefaultMaxRetries+2; i++ {
		assert.Zero(t, publisher.ProcessBatch(ctx))
	}

	for _, e := range repo.events {
		assert.Equal(t, DefaultMaxRetries, e.RetryCount)
		assert.Equal(t, "broker unavailable", e.LastError)
		assert.False(t, e.IsPublished())
	}
	assert.Equal(t, DefaultMaxRetries, publisher.Stats()["failed"])
}

func TestPublisher_StartStop(t *testing.T) {
	repo := newMemoryRepo()
	publisher := newTestPublisher(repo, &recordingProducer{})

	require.NoError(t, publisher.Start(context.Background()))
	assert.True(t, publisher.IsRunning())
	assert.Error(t, publisher.Start(context.Background()))

	require.NoError(t, publisher.Stop())
	assert.False(t, publisher.IsRunning())
	assert.Error(t, publisher.Stop())
}
