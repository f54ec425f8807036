// Package events exports accepted price quotes to Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"pricecomparator/internal/logger"
	"pricecomparator/internal/models"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const flushTimeoutMs = 5000

// PriceUpdate is the record written for every accepted quote.
type PriceUpdate struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// KafkaPublisher writes price updates to a topic.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaPublisher creates a producer for broker and starts draining its
// delivery reports.
func NewKafkaPublisher(broker, topic string) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": broker})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	go func() {
		for e := range p.Events() {
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				logger.Log.Warn("Kafka delivery failed", zap.Error(m.TopicPartition.Error))
			}
		}
	}()

	logger.Log.Info("Kafka producer ready", zap.String("broker", broker), zap.String("topic", topic))
	return &KafkaPublisher{producer: p, topic: topic}, nil
}

// encodePriceUpdate returns the record for snap, or false when snap was not
// produced by a new quote.
func encodePriceUpdate(snap models.Snapshot) ([]byte, bool, error) {
	if snap.Trigger != models.TriggerPrice || snap.CurrentPrice == nil {
		return nil, false, nil
	}

	ts := time.Now()
	if snap.UpdatedAt != nil {
		ts = *snap.UpdatedAt
	}

	value, err := json.Marshal(PriceUpdate{
		Exchange:  snap.Source,
		Symbol:    snap.Symbol,
		Price:     *snap.CurrentPrice,
		Timestamp: ts.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Publish is a widget observer; only price-triggered snapshots are exported.
func (k *KafkaPublisher) Publish(snap models.Snapshot) {
	value, ok, err := encodePriceUpdate(snap)
	if err != nil {
		logger.Log.Error("Error marshaling price update", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(snap.Symbol),
		Value:          value,
	}, nil)
	if err != nil {
		logger.Log.Warn("Error producing Kafka message", zap.Error(err))
	}
}

// Close flushes pending messages and closes the producer.
func (k *KafkaPublisher) Close() {
	if remaining := k.producer.Flush(flushTimeoutMs); remaining > 0 {
		logger.Log.Warn("Kafka messages not delivered before shutdown", zap.Int("remaining", remaining))
	}
	k.producer.Close()
}
