package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/iris/pkg/tracing"
)

// SchemaVersion is the current contact event schema version
const SchemaVersion = "1.0"

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes contact events to Kafka
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression(cfg.Compression),
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

func compression(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Snappy
	}
}

// Close flushes pending messages and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ContactEvent describes a change to one contact or cluster
type ContactEvent struct {
	EventType      string    `json:"event_type"` // contact.created, contact.linked, cluster.merged
	ContactID      int64     `json:"contact_id"`
	PrimaryID      int64     `json:"primary_id"`
	Email          *string   `json:"email,omitempty"`
	PhoneNumber    *string   `json:"phone_number,omitempty"`
	LinkPrecedence string    `json:"link_precedence,omitempty"`
	DemotedIDs     []int64   `json:"demoted_ids,omitempty"`
	RelinkedIDs    []int64   `json:"relinked_ids,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PublishContactEvents publishes events in one batch. Messages are keyed by primary id so
// every event of a cluster lands on the same partition, in order.
func (p *Producer) PublishContactEvents(ctx context.Context, events []*ContactEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishContactEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(strconv.FormatInt(event.PrimaryID, 10)),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "schema_version", Value: []byte(SchemaVersion)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish contact events batch")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published contact events batch")

	return nil
}
