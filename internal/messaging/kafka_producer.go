// internal/messaging/kafka_producer.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/agrilink/marketplace-backend/internal/config"
	"github.com/agrilink/marketplace-backend/internal/models"
)

const publishTimeout = 5 * time.Second

// EventPublisher emits order lifecycle events after the database commit.
// Delivery is best effort: callers log failures and never roll back on them.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) EventPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}

	return &kafkaProducer{writer: writer}
}

// NewPublisher returns a Kafka producer when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(cfg config.KafkaConfig) EventPublisher {
	if len(cfg.Brokers) == 0 {
		logrus.Info("Kafka brokers not configured, order events will not be published")
		return NoopPublisher{}
	}
	logrus.WithFields(logrus.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.OrderTopic,
	}).Info("Publishing order events to Kafka")
	return NewKafkaProducer(cfg.Brokers, cfg.OrderTopic)
}

func (p *kafkaProducer) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	// Keyed by order so every event of one order lands on the same partition.
	message := kafka.Message{
		Key:   []byte(event.OrderID.String()),
		Value: eventJSON,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write order event to kafka: %w", err)
	}

	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

type NoopPublisher struct{}

func (NoopPublisher) PublishOrderEvent(context.Context, *models.OrderEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
