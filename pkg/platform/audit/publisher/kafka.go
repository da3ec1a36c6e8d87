// Package publisher delivers audit events to Kafka.
package publisher

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

type Kafka struct {
	client *kgo.Client
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client}, nil
}

// Publish produces one record synchronously. The key carries the aggregate
// id so events for the same parcel or transfer land on the same partition.
func (k *Kafka) Publish(ctx context.Context, key string, payload []byte) error {
	record := &kgo.Record{Key: []byte(key), Value: payload}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

func (k *Kafka) Close() {
	k.client.Close()
}
