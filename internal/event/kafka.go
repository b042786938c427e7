package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by wallet id so
// that events of one wallet stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher wraps a configured writer. The writer owns the topic.
func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish encodes and writes the event.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.WalletID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	return nil
}
