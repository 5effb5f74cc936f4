package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer hands a serialized event to the broker. The Kafka implementation
// is the production path; tests swap in a fake.
type Producer interface {
	Produce(ctx context.Context, event Event) error
	Close()
}

// KafkaProducer publishes events to a single topic keyed by request id so a
// request's events stay ordered within a partition.
type KafkaProducer struct {
	client *kgo.Client
	topic  string
}

func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaProducer{client: client, topic: topic}, nil
}

func (p *KafkaProducer) Produce(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.RequestID),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() {
	p.client.Close()
}
