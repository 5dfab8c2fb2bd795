package kafka

import (
	"context"
	"time"

	"github.com/pharmacy-platform/pharmacy-service/pkg/cloudevents"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
	"github.com/pharmacy-platform/pharmacy-service/pkg/resilience"
	"github.com/pharmacy-platform/pharmacy-service/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedProducer wraps a Producer with tracing, metrics and a circuit
// breaker so a dead broker does not stall the outbox loop
type InstrumentedProducer struct {
	producer *Producer
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
	breaker  *resilience.CircuitBreaker
}

// NewInstrumentedProducer creates a new instrumented producer
func NewInstrumentedProducer(producer *Producer, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	cbConfig := resilience.DefaultCircuitBreakerConfig("kafka-producer")
	if m != nil {
		cbConfig.OnStateChange = resilience.RecordStateChanges(m)
	}

	return &InstrumentedProducer{
		producer: producer,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("kafka-producer"),
		breaker:  resilience.NewCircuitBreaker(cbConfig, logger.WithComponent("kafka").Logger),
	}
}

// PublishEvent publishes a CloudEvent inside a producer span. The span's
// trace context travels with the message as ce-traceparent.
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.PharmacyCloudEvent) error {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("kafka"),
			semconv.MessagingDestinationNameKey.String(topic),
			semconv.MessagingOperationKey.String("publish"),
			attribute.String("messaging.kafka.event_type", event.Type),
			attribute.String("messaging.message_id", event.ID),
		),
	)
	defer span.End()

	if event.CorrelationID != "" {
		span.SetAttributes(attribute.String("pharmacy.correlation_id", event.CorrelationID))
	}

	carrier := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)

	err := p.breaker.Run(ctx, func() error {
		return p.producer.PublishEvent(ctx, topic, event, carrier)
	})
	duration := time.Since(start)

	success := err == nil
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, success, duration)
	}
	p.logger.KafkaPublish(ctx, topic, event.Type, success, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// Close closes the underlying producer
func (p *InstrumentedProducer) Close() error {
	return p.producer.Close()
}
