package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces table snapshots to a Kafka topic.
// It implements synthesis.Publisher.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the snapshot topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, topic: topic, logger: logger}
}

// Publish serializes a snapshot and writes it keyed by dataset, so every
// version of a table lands on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, snap domain.TableSnapshot) error {
	msg, err := serializeToMessage(snap)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot to %s: %w", p.topic, err)
	}
	p.logger.Debug("snapshot published",
		"topic", p.topic,
		"dataset", snap.Dataset,
		"version", snap.Version,
		"reason", snap.Reason,
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a TableSnapshot into a Kafka message.
func serializeToMessage(snap domain.TableSnapshot) (kafkago.Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s snapshot: %w", snap.Dataset, err)
	}
	return kafkago.Message{
		Key:   []byte(snap.Dataset),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(snap.Dataset)},
			{Key: "version", Value: []byte(strconv.FormatUint(snap.Version, 10))},
			{Key: "reason", Value: []byte(snap.Reason)},
			{Key: "taken_at", Value: []byte(snap.TakenAt.Format(time.RFC3339))},
		},
	}, nil
}
