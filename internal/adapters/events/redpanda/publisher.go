// Package redpanda publica los eventos del registro de tomas en un tópico
// Kafka-compatible usando franz-go.
package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/ports/events"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	Brokers []string
	Topic   string
	// Default 3.
	MaxRetries int
}

type Publisher struct {
	client *kgo.Client
	topic  string
	log    logger.Logger
	tracer trace.Tracer
}

func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("redpanda: at least one broker required")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = events.TopicDoseActionRecorded
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	if log == nil {
		log = logger.Nop()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RecordRetries(retries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return 100 * time.Millisecond * time.Duration(attempt+1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Publisher{
		client: client,
		topic:  topic,
		log:    log.With(map[string]any{"module": "redpanda.publisher", "topic": topic}),
		tracer: otel.Tracer("redpanda-publisher"),
	}, nil
}

// PublishDoseAction produce el evento de forma síncrona. La clave es el
// paciente, así los eventos de un mismo paciente quedan ordenados en su partición.
func (p *Publisher) PublishDoseAction(ctx context.Context, evt events.DoseActionRecorded) error {
	ctx, span := p.tracer.Start(ctx, "publish_dose_action",
		trace.WithAttributes(
			attribute.String("topic", p.topic),
			attribute.String("entry_id", evt.EntryID),
			attribute.String("action", evt.Action),
		))
	defer span.End()

	record, err := buildRecord(ctx, p.topic, evt)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		span.RecordError(err)
		p.log.Error("failed to produce dose action", map[string]any{"entry_id": evt.EntryID, "error": err})
		return fmt.Errorf("produce dose action: %w", err)
	}
	return nil
}

// Ping verifica que algún broker responda.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.log.Warn("error flushing on close", map[string]any{"error": err})
	}
	p.client.Close()
}

func buildRecord(ctx context.Context, topic string, evt events.DoseActionRecorded) (*kgo.Record, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal dose action: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(evt.PatientID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(events.TopicDoseActionRecorded)},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, recordCarrier{record})
	return record, nil
}

// recordCarrier adapta los headers del record a propagation.TextMapCarrier.
type recordCarrier struct {
	r *kgo.Record
}

var _ propagation.TextMapCarrier = recordCarrier{}

func (c recordCarrier) Get(key string) string {
	for _, h := range c.r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c recordCarrier) Set(key, value string) {
	for i, h := range c.r.Headers {
		if h.Key == key {
			c.r.Headers[i].Value = []byte(value)
			return
		}
	}
	c.r.Headers = append(c.r.Headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
}

func (c recordCarrier) Keys() []string {
	out := make([]string, 0, len(c.r.Headers))
	for _, h := range c.r.Headers {
		out = append(out, h.Key)
	}
	return out
}
