// Package events carries order events over Kafka: a producer, a consumer
// with retry and a dead-letter topic, and a DLQ processor.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/jogardn/laser-orders/internal/notify"
	"github.com/jogardn/laser-orders/pkg/models"
)

const (
	DefaultTopic = "order-events"
	DLQSuffix    = "-dlq"
)

func DLQTopic(topic string) string {
	return topic + DLQSuffix
}

type OrderEvent struct {
	EventID     string           `json:"event_id"`
	Type        notify.EventType `json:"type"`
	OrderID     string           `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	Order       models.Order     `json:"order"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

func NewOrderEvent(event notify.Event) OrderEvent {
	return OrderEvent{
		EventID:     uuid.New().String(),
		Type:        event.Type,
		OrderID:     event.Order.ID,
		OrderNumber: event.Order.OrderNumber,
		Order:       event.Order,
		OccurredAt:  event.OccurredAt,
	}
}

// Notification converts the wire event back to what notifiers consume.
func (e OrderEvent) Notification() notify.Event {
	return notify.Event{Type: e.Type, Order: e.Order, OccurredAt: e.OccurredAt}
}

// MessageMetadata travels in the "metadata" header of dead-lettered
// messages.
type MessageMetadata struct {
	RetryCount    int       `json:"retry_count"`
	FirstFailure  time.Time `json:"first_failure"`
	LastFailure   time.Time `json:"last_failure"`
	OriginalTopic string    `json:"original_topic"`
	ErrorMessage  string    `json:"error_message"`
}

const (
	headerMetadata   = "metadata"
	headerRetryCount = "retry_count"
	headerReplayed   = "replayed_from_dlq"
)

func header(message *sarama.ConsumerMessage, key string) ([]byte, bool) {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == key {
			return h.Value, true
		}
	}
	return nil, false
}

// ExtractMetadata reads the DLQ metadata header, falling back to the replay
// retry counter for messages that came back from the DLQ. A malformed header
// is reported as an error alongside whatever the retry counter provides.
func ExtractMetadata(message *sarama.ConsumerMessage) (MessageMetadata, error) {
	metadata := MessageMetadata{OriginalTopic: message.Topic}
	var decodeErr error
	if raw, ok := header(message, headerMetadata); ok {
		var decoded MessageMetadata
		if err := json.Unmarshal(raw, &decoded); err != nil {
			decodeErr = fmt.Errorf("failed to decode DLQ metadata: %w", err)
		} else {
			metadata = decoded
			if metadata.OriginalTopic == "" {
				metadata.OriginalTopic = message.Topic
			}
		}
	}
	if raw, ok := header(message, headerRetryCount); ok {
		if count, err := strconv.Atoi(string(raw)); err == nil && count > metadata.RetryCount {
			metadata.RetryCount = count
		}
	}
	return metadata, decodeErr
}

func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0
	return config
}

func consumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_6_0_0
	return config
}
