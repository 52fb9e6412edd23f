package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

var ErrReplayLimit = errors.New("exceeded maximum replay attempts")

type DLQEntry struct {
	Key       string          `json:"key"`
	Partition int32           `json:"partition"`
	Offset    int64           `json:"offset"`
	Metadata      MessageMetadata `json:"metadata"`
	MetadataError string          `json:"metadataError,omitempty"`
	Event         *OrderEvent     `json:"event,omitempty"`
}

// DLQProcessor reads the dead-letter topic, reports every entry and
// optionally republishes it to the main topic.
type DLQProcessor struct {
	consumer   sarama.ConsumerGroup
	producer   sarama.SyncProducer
	logger     *logrus.Logger
	topic      string
	replay     bool
	maxReplays int
}

func NewDLQProcessor(brokers []string, topic string, replay bool, logger *logrus.Logger) (*DLQProcessor, error) {
	consumer, err := sarama.NewConsumerGroup(brokers, "dlq-processor-group", consumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ consumer: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &DLQProcessor{
		consumer:   consumer,
		producer:   producer,
		logger:     logger,
		topic:      topic,
		replay:     replay,
		maxReplays: MaxRetries * 2,
	}, nil
}

func (p *DLQProcessor) Run(ctx context.Context) error {
	handler := &dlqConsumerHandler{processor: p}
	for {
		if err := p.consumer.Consume(ctx, []string{DLQTopic(p.topic)}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			p.logger.WithError(err).Error("Error consuming from DLQ")
			return err
		}
		if ctx.Err() != nil {
			p.logger.Info("DLQ processor context cancelled")
			return nil
		}
	}
}

func Inspect(message *sarama.ConsumerMessage) DLQEntry {
	entry := DLQEntry{
		Key:       string(message.Key),
		Partition: message.Partition,
		Offset:    message.Offset,
	}
	metadata, err := ExtractMetadata(message)
	entry.Metadata = metadata
	if err != nil {
		entry.MetadataError = err.Error()
	}
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err == nil {
		entry.Event = &event
	}
	return entry
}

func (p *DLQProcessor) ReplayMessage(message *sarama.ConsumerMessage) error {
	metadata, err := ExtractMetadata(message)
	if err != nil {
		p.logger.WithError(err).WithField("order_key", string(message.Key)).Warn("Replaying with retry counter only")
	}
	if metadata.RetryCount >= p.maxReplays {
		p.logger.WithFields(logrus.Fields{
			"order_key":   string(message.Key),
			"retry_count": metadata.RetryCount,
		}).Error("Message exceeded maximum replay attempts")
		return ErrReplayLimit
	}

	replayMessage := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerRetryCount), Value: []byte(strconv.Itoa(metadata.RetryCount))},
			{Key: []byte(headerReplayed), Value: []byte("true")},
			{Key: []byte("replay_time"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	partition, offset, err := p.producer.SendMessage(replayMessage)
	if err != nil {
		return fmt.Errorf("failed to replay message: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"replay_topic":     p.topic,
		"replay_partition": partition,
		"replay_offset":    offset,
		"order_key":        string(message.Key),
	}).Info("Message replayed from DLQ")
	return nil
}

func (p *DLQProcessor) Close() error {
	if err := p.producer.Close(); err != nil {
		p.logger.WithError(err).Error("Failed to close producer")
	}
	return p.consumer.Close()
}

type dlqConsumerHandler struct {
	processor *DLQProcessor
}

func (h *dlqConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *dlqConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *dlqConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	p := h.processor
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			entry := Inspect(message)
			fields := logrus.Fields{
				"key":            entry.Key,
				"partition":      entry.Partition,
				"offset":         entry.Offset,
				"original_topic": entry.Metadata.OriginalTopic,
				"retry_count":    entry.Metadata.RetryCount,
				"first_failure":  entry.Metadata.FirstFailure,
				"last_failure":   entry.Metadata.LastFailure,
				"error_message":  entry.Metadata.ErrorMessage,
			}
			if entry.Event != nil {
				fields["event"] = entry.Event.Type
				fields["order_number"] = entry.Event.OrderNumber
			}
			p.logger.WithFields(fields).Warn("DLQ message detected")

			if p.replay {
				if err := p.ReplayMessage(message); err != nil && !errors.Is(err, ErrReplayLimit) {
					p.logger.WithError(err).Error("Failed to replay DLQ message")
					return err
				}
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
