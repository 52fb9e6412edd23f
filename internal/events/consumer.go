package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	MaxRetries        = 3
	InitialRetryDelay = 100 * time.Millisecond
	MaxRetryDelay     = 5 * time.Second
)

// ErrPermanent marks handler failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

type Handler interface {
	Handle(ctx context.Context, event OrderEvent) error
}

type ConsumerMetrics struct {
	ProcessedCount int64 `json:"processed"`
	RetryCount     int64 `json:"retries"`
	DLQCount       int64 `json:"dead_lettered"`
	SuccessCount   int64 `json:"succeeded"`
	FailureCount   int64 `json:"failed"`
}

type metrics struct {
	processed, retries, dlq, success, failure atomic.Int64
}

func (m *metrics) snapshot() ConsumerMetrics {
	return ConsumerMetrics{
		ProcessedCount: m.processed.Load(),
		RetryCount:     m.retries.Load(),
		DLQCount:       m.dlq.Load(),
		SuccessCount:   m.success.Load(),
		FailureCount:   m.failure.Load(),
	}
}

// Processor runs one message through the handler with exponential backoff
// and dead-letters it when the retries are exhausted.
type Processor struct {
	handler    Handler
	dlq        sarama.SyncProducer
	dlqTopic   string
	logger     *logrus.Logger
	metrics    *metrics
	maxRetries int
	delay      time.Duration
	maxDelay   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewProcessor(handler Handler, dlq sarama.SyncProducer, topic string, logger *logrus.Logger) *Processor {
	return &Processor{
		handler:    handler,
		dlq:        dlq,
		dlqTopic:   DLQTopic(topic),
		logger:     logger,
		metrics:    &metrics{},
		maxRetries: MaxRetries,
		delay:      InitialRetryDelay,
		maxDelay:   MaxRetryDelay,
		sleep:      sleepContext,
	}
}

func (p *Processor) Metrics() ConsumerMetrics {
	return p.metrics.snapshot()
}

// Process returns an error only when the message could neither be handled
// nor dead-lettered; the caller must then not commit its offset.
func (p *Processor) Process(ctx context.Context, message *sarama.ConsumerMessage) error {
	p.metrics.processed.Add(1)

	err := p.handleWithRetry(ctx, message)
	if err == nil {
		p.metrics.success.Add(1)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.metrics.failure.Add(1)
	p.logger.WithError(err).WithField("key", string(message.Key)).Error("Failed to process message after retries")
	if dlqErr := p.sendToDLQ(message, err); dlqErr != nil {
		p.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
		return dlqErr
	}
	p.metrics.dlq.Add(1)
	return nil
}

func (p *Processor) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("%w: malformed order event: %v", ErrPermanent, err)
	}

	log := p.logger.WithFields(logrus.Fields{
		"event":    event.Type,
		"order_id": event.OrderID,
		"offset":   message.Offset,
	})

	delay := p.delay
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay.String()}).Info("Retrying order event")
			if serr := p.sleep(ctx, delay); serr != nil {
				return serr
			}
			p.metrics.retries.Add(1)
			delay *= 2
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
		}

		if err = p.handler.Handle(ctx, event); err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			log.WithError(err).Error("Non-retryable error encountered")
			return err
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("Retryable error handling order event")
	}
	return fmt.Errorf("exhausted retries for order %s: %w", event.OrderID, err)
}

func (p *Processor) sendToDLQ(message *sarama.ConsumerMessage, processingError error) error {
	now := time.Now().UTC()
	previous, err := ExtractMetadata(message)
	if err != nil {
		p.logger.WithError(err).WithField("key", string(message.Key)).Warn("Ignoring unreadable DLQ metadata")
	}
	metadata := MessageMetadata{
		RetryCount:    previous.RetryCount + 1,
		FirstFailure:  previous.FirstFailure,
		LastFailure:   now,
		OriginalTopic: message.Topic,
		ErrorMessage:  processingError.Error(),
	}
	if metadata.FirstFailure.IsZero() {
		metadata.FirstFailure = now
	}

	metadataBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dlqMessage := &sarama.ProducerMessage{
		Topic: p.dlqTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerMetadata), Value: metadataBytes},
			{Key: []byte("original_topic"), Value: []byte(message.Topic)},
			{Key: []byte("original_partition"), Value: []byte(strconv.Itoa(int(message.Partition)))},
			{Key: []byte("original_offset"), Value: []byte(strconv.FormatInt(message.Offset, 10))},
			{Key: []byte("failure_time"), Value: []byte(now.Format(time.RFC3339))},
		},
	}

	partition, offset, err := p.dlq.SendMessage(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"dlq_topic":     p.dlqTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"original_key":  string(message.Key),
		"error":         processingError.Error(),
	}).Warn("Message sent to dead letter queue")
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consumer is a consumer-group member feeding messages to a Processor.
type Consumer struct {
	group     sarama.ConsumerGroup
	producer  sarama.SyncProducer
	processor *Processor
	topics    []string
	logger    *logrus.Logger
}

func NewConsumer(brokers []string, groupID, topic string, handler Handler, logger *logrus.Logger) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, consumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	return &Consumer{
		group:     group,
		producer:  producer,
		processor: NewProcessor(handler, producer, topic, logger),
		topics:    []string{topic},
		logger:    logger,
	}, nil
}

// Start consumes until ctx is cancelled. Consume returns on every rebalance,
// so it is called in a loop.
func (c *Consumer) Start(ctx context.Context) error {
	handler := &groupHandler{processor: c.processor, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.WithError(err).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

func (c *Consumer) Metrics() ConsumerMetrics {
	return c.processor.Metrics()
}

func (c *Consumer) Close() error {
	if err := c.producer.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close producer")
	}
	return c.group.Close()
}

type groupHandler struct {
	processor *Processor
	logger    *logrus.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.processor.Process(session.Context(), message); err != nil {
				return err
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
