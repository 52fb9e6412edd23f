package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/jogardn/laser-orders/internal/notify"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() notify.Event {
	return notify.NewEvent(notify.EventOrderCreated, models.Order{
		ID:          "6f1c2a9e-8d4b-4c1e-9a57-0b6f3c2d1e0a",
		OrderNumber: "PJ-01HX3K4M5N-6P7Q8R9S",
		Details:     models.DesignDetails{},
		Status:      models.StatusNew,
	})
}

func TestPublisherSendsKeyedEvent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event OrderEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.Type != notify.EventOrderCreated || event.OrderNumber != "PJ-01HX3K4M5N-6P7Q8R9S" || event.EventID == "" {
			return errors.New("unexpected event payload")
		}
		if event.Order.Service() != models.ServiceDesign {
			return errors.New("order details lost in transit")
		}
		return nil
	})

	publisher := NewPublisher(NewProducerFromClient(mock, "", logger))
	assert.Equal(t, "kafka", publisher.Name())
	require.NoError(t, publisher.Notify(context.Background(), sampleEvent()))
	require.NoError(t, mock.Close())
}

func TestPublisherReportsSendFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewPublisher(NewProducerFromClient(mock, "order-events", logger))
	err := publisher.Notify(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mock.Close())
}

type flakyHandler struct {
	failures int
	err      error
	calls    int
}

func (h *flakyHandler) Handle(ctx context.Context, event OrderEvent) error {
	h.calls++
	if h.calls <= h.failures {
		return h.err
	}
	return nil
}

func newTestProcessor(t *testing.T, handler Handler, dlq sarama.SyncProducer) *Processor {
	logger, _ := test.NewNullLogger()
	p := NewProcessor(handler, dlq, DefaultTopic, logger)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func consumerMessage(t *testing.T) *sarama.ConsumerMessage {
	data, err := json.Marshal(NewOrderEvent(sampleEvent()))
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: DefaultTopic, Key: []byte("6f1c2a9e"), Value: data, Offset: 42}
}

func TestProcessRetriesThenSucceeds(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	handler := &flakyHandler{failures: 2, err: errors.New("smtp timeout")}
	p := newTestProcessor(t, handler, dlq)

	require.NoError(t, p.Process(context.Background(), consumerMessage(t)))
	assert.Equal(t, 3, handler.calls)
	metrics := p.Metrics()
	assert.Equal(t, int64(2), metrics.RetryCount)
	assert.Equal(t, int64(1), metrics.SuccessCount)
	assert.Zero(t, metrics.DLQCount)
	require.NoError(t, dlq.Close())
}

func TestProcessDeadLettersAfterRetries(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	dlq.ExpectSendMessageAndSucceed()
	handler := &flakyHandler{failures: 100, err: errors.New("chat unreachable")}
	p := newTestProcessor(t, handler, dlq)

	require.NoError(t, p.Process(context.Background(), consumerMessage(t)))
	assert.Equal(t, MaxRetries+1, handler.calls)
	assert.Equal(t, int64(1), p.Metrics().DLQCount)
	assert.Equal(t, int64(1), p.Metrics().FailureCount)
	require.NoError(t, dlq.Close())
}

func TestProcessDoesNotRetryPermanentFailures(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	dlq.ExpectSendMessageAndSucceed()
	dlq.ExpectSendMessageAndSucceed()
	handler := &flakyHandler{failures: 100, err: ErrPermanent}
	p := newTestProcessor(t, handler, dlq)

	require.NoError(t, p.Process(context.Background(), consumerMessage(t)))
	assert.Equal(t, 1, handler.calls)

	malformed := &sarama.ConsumerMessage{Topic: DefaultTopic, Value: []byte("{not json")}
	require.NoError(t, p.Process(context.Background(), malformed))
	assert.Equal(t, 1, handler.calls)
	assert.Equal(t, int64(2), p.Metrics().DLQCount)
	require.NoError(t, dlq.Close())
}

func TestProcessFailsWhenDLQUnavailable(t *testing.T) {
	dlq := mocks.NewSyncProducer(t, nil)
	dlq.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	p := newTestProcessor(t, &flakyHandler{failures: 100, err: ErrPermanent}, dlq)

	err := p.Process(context.Background(), consumerMessage(t))
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	require.NoError(t, dlq.Close())
}

func TestExtractMetadataPrefersHighestRetryCount(t *testing.T) {
	metadata, err := json.Marshal(MessageMetadata{RetryCount: 2, ErrorMessage: "boom"})
	require.NoError(t, err)
	message := &sarama.ConsumerMessage{
		Topic: DLQTopic(DefaultTopic),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(headerMetadata), Value: metadata},
			{Key: []byte(headerRetryCount), Value: []byte("4")},
		},
	}

	got, err := ExtractMetadata(message)
	require.NoError(t, err)
	assert.Equal(t, 4, got.RetryCount)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestExtractMetadataReportsMalformedHeader(t *testing.T) {
	message := &sarama.ConsumerMessage{
		Topic: DLQTopic(DefaultTopic),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(headerMetadata), Value: []byte("{not json")},
			{Key: []byte(headerRetryCount), Value: []byte("3")},
		},
	}

	got, err := ExtractMetadata(message)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode DLQ metadata")
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, DLQTopic(DefaultTopic), got.OriginalTopic)

	entry := Inspect(message)
	assert.NotEmpty(t, entry.MetadataError)
	assert.Equal(t, 3, entry.Metadata.RetryCount)
}

func TestReplayMessage(t *testing.T) {
	logger, _ := test.NewNullLogger()
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	p := &DLQProcessor{producer: producer, logger: logger, topic: DefaultTopic, maxReplays: 6}

	message := consumerMessage(t)
	message.Headers = []*sarama.RecordHeader{{Key: []byte(headerRetryCount), Value: []byte("1")}}
	require.NoError(t, p.ReplayMessage(message))

	message.Headers = []*sarama.RecordHeader{{Key: []byte(headerRetryCount), Value: []byte("6")}}
	assert.ErrorIs(t, p.ReplayMessage(message), ErrReplayLimit)
	require.NoError(t, producer.Close())
}

func TestInspect(t *testing.T) {
	entry := Inspect(consumerMessage(t))
	require.NotNil(t, entry.Event)
	assert.Equal(t, "PJ-01HX3K4M5N-6P7Q8R9S", entry.Event.OrderNumber)
	assert.Equal(t, int64(42), entry.Offset)

	entry = Inspect(&sarama.ConsumerMessage{Value: []byte("garbage")})
	assert.Nil(t, entry.Event)
}

type countingNotifier struct {
	name  string
	fail  int
	calls int
}

func (c *countingNotifier) Name() string { return c.name }

func (c *countingNotifier) Notify(ctx context.Context, event notify.Event) error {
	c.calls++
	if c.calls <= c.fail {
		return errors.New("temporarily down")
	}
	return nil
}

func TestNotificationHandlerSkipsDeliveredChannelsOnRetry(t *testing.T) {
	logger, _ := test.NewNullLogger()
	email := &countingNotifier{name: "email"}
	chat := &countingNotifier{name: "telegram", fail: 1}
	handler := NewNotificationHandler(notify.NewDispatcher(logger, time.Second, email, chat))

	event := NewOrderEvent(sampleEvent())
	assert.Error(t, handler.Handle(context.Background(), event))
	require.NoError(t, handler.Handle(context.Background(), event))

	assert.Equal(t, 1, email.calls, "email must not be re-sent")
	assert.Equal(t, 2, chat.calls)
}
