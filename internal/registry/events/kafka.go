package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"attestry/internal/platform/kafka"
)

// Kafka publishes registry events as JSON records. Record keys are fresh
// event ids so downstream consumers can deduplicate on redelivery.
type Kafka struct {
	producer *kafka.Producer
}

// NewKafka wraps a connected producer. Call EnsureTopics on the producer at
// startup so first publishes do not race topic creation.
func NewKafka(producer *kafka.Producer) *Kafka {
	return &Kafka{producer: producer}
}

func (k *Kafka) Publish(ctx context.Context, topic string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	key := []byte(uuid.NewString())
	return k.producer.Produce(ctx, topic, key, value)
}
