package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/emergency-dispatch/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer writes status events and fleet locations to their topics,
// keyed by request or vehicle id so each key stays ordered in a partition.
type KafkaProducer struct {
	status   messageWriter
	location messageWriter
	timeout  time.Duration
}

func NewKafkaProducer(brokers []string, statusTopic, locationTopic string) *KafkaProducer {
	return &KafkaProducer{
		status:   &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: statusTopic, Balancer: &kafka.Hash{}},
		location: &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: locationTopic, Balancer: &kafka.Hash{}},
		timeout:  2 * time.Second,
	}
}

// Publish implements the booking sink for status events.
func (k *KafkaProducer) Publish(ctx context.Context, ev models.StatusEvent) error {
	return k.write(ctx, k.status, ev.RequestID, ev)
}

func (k *KafkaProducer) PublishLocation(ctx context.Context, v models.Vehicle) error {
	return k.write(ctx, k.location, v.ID, v)
}

func (k *KafkaProducer) write(ctx context.Context, w messageWriter, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (k *KafkaProducer) Close() error {
	var first error
	for _, w := range []messageWriter{k.status, k.location} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
