package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	EventJobCreated  = "job.created"
	EventJobStarted  = "job.started"
	EventJobFinished = "job.finished"
)

const (
	defaultPublishTimeout = 2 * time.Second
	defaultMaxAttempts    = 3
)

// Config holds Kafka configuration
type Config struct {
	Brokers []string
	Topic   string
	// PublishTimeout bounds one publish, retries included
	PublishTimeout time.Duration
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, topic string) Config {
	var brokerList []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokerList = append(brokerList, broker)
		}
	}

	return Config{
		Brokers:        brokerList,
		Topic:          topic,
		PublishTimeout: defaultPublishTimeout,
	}
}

// messageWriter is the part of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes job lifecycle events
type Producer struct {
	writer  messageWriter
	logger  ectologger.Logger
	topic   string
	timeout time.Duration
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		MaxAttempts:  defaultMaxAttempts,
		WriteTimeout: timeout,
		WriteBackoffMax: timeout / 4,
		// dev brokers create the topic on first publish
		AllowAutoTopicCreation: true,
	}

	p := newProducer(writer, cfg.Topic, logger)
	p.timeout = timeout
	return p
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer:  writer,
		logger:  logger,
		topic:   topic,
		timeout: defaultPublishTimeout,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// JobEvent is a lifecycle event of an integration job. It never carries credentials.
type JobEvent struct {
	Type          string    `json:"type"`
	JobID         string    `json:"job_id"`
	IntegrationID string    `json:"integration_id"`
	OwnerScope    string    `json:"owner_scope"`
	OwnerID       string    `json:"owner_id"`
	Provider      string    `json:"provider"`
	JobType       string    `json:"job_type"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	OK            *bool     `json:"ok,omitempty"`
	Message       string    `json:"message,omitempty"`
	DurationMs    int64     `json:"duration_ms,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Timestamp     time.Time `json:"timestamp"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// PublishJobEvent publishes a job event keyed by integration so events of one integration stay ordered.
// The write ignores cancellation of ctx and gives up after the publish timeout.
func (p *Producer) PublishJobEvent(ctx context.Context, evt *JobEvent) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishJobEvent")
	defer span.End()

	if evt == nil {
		return fmt.Errorf("job event is nil")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("event_type", evt.Type),
		attribute.String("job_id", evt.JobID),
	)

	evt.TraceID = tracing.GetTraceID(ctx)
	evt.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "owner_scope", Value: []byte(evt.OwnerScope)},
		{Key: "owner_id", Value: []byte(evt.OwnerID)},
		{Key: "provider", Value: []byte(evt.Provider)},
		{Key: "type", Value: []byte(evt.Type)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:     []byte(evt.IntegrationID),
		Value:   data,
		Headers: headers,
	}); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish job event to Kafka topic %s", p.topic)
		return err
	}

	metrics.RecordKafkaPublish(p.topic, "success")
	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published %s for job %s", evt.Type, evt.JobID)
	return nil
}
