package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/jogardn/laser-orders/internal/notify"
	"github.com/sirupsen/logrus"
)

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Logger
}

func NewProducer(brokers []string, topic string, logger *logrus.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewProducerFromClient(producer, topic, logger), nil
}

func NewProducerFromClient(producer sarama.SyncProducer, topic string, logger *logrus.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{producer: producer, topic: topic, logger: logger}
}

func (p *Producer) PublishOrderEvent(event OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     p.topic,
		"partition": partition,
		"offset":    offset,
		"event":     event.Type,
		"order_id":  event.OrderID,
	}).Info("Event published to Kafka")
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

// Publisher exposes the producer as a notification channel so order events
// reach downstream consumers alongside the direct channels.
type Publisher struct {
	producer *Producer
}

func NewPublisher(producer *Producer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Notify(ctx context.Context, event notify.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.producer.PublishOrderEvent(NewOrderEvent(event))
}
