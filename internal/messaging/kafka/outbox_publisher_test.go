package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/sahaalaf/sashop/internal/domain"
)

func cancelledEvent() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventOrderCancelled,
		Payload:       []byte(`{"status":"cancelled","previous_status":"processing"}`),
	}
}

func TestOutboxPublisher_PublishesEnvelope(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope Envelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || envelope.AggregateID != "order-123" || envelope.EventType != domain.EventOrderCancelled {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		if !envelope.PublishedAt.Equal(at) {
			return fmt.Errorf("unexpected published_at %s", envelope.PublishedAt)
		}
		return nil
	})

	publisher := NewOutboxPublisher(newProducer(mockProducer, nil), "")
	publisher.now = func() time.Time { return at }

	require.NoError(t, publisher.Publish(cancelledEvent()))
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(mockProducer, nil), TopicOrderEvents)
	require.ErrorIs(t, publisher.Publish(cancelledEvent()), sarama.ErrOutOfBrokers)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_NilProducer(t *testing.T) {
	t.Parallel()

	require.Error(t, NewOutboxPublisher(nil, TopicOrderEvents).Publish(cancelledEvent()))
	require.Error(t, NewDLQPublisher(nil, "", "").Publish(cancelledEvent()))
}

func TestDLQPublisher_ForwardsPayloadAsIs(t *testing.T) {
	t.Parallel()

	event := cancelledEvent()
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != string(event.Payload) {
			return fmt.Errorf("payload changed: %s", val)
		}
		return nil
	})

	publisher := NewDLQPublisher(newProducer(mockProducer, nil), "", "")
	require.Equal(t, TopicDeadLetterQueue, publisher.topic)
	require.Equal(t, TopicOrderEvents, publisher.originalTopic)
	require.NoError(t, publisher.Publish(event))
	require.NoError(t, mockProducer.Close())
}

func TestNewEnvelope_NonJSONPayload(t *testing.T) {
	t.Parallel()

	envelope := NewEnvelope(domain.OutboxMessage{ID: "x", Payload: []byte("plain text")}, time.Now())
	require.JSONEq(t, `"plain text"`, string(envelope.Payload))

	empty := NewEnvelope(domain.OutboxMessage{ID: "y"}, time.Now())
	require.JSONEq(t, `null`, string(empty.Payload))
}

func TestPartitionKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "order-123", partitionKey(cancelledEvent()))
	require.Equal(t, "outbox-9", partitionKey(domain.OutboxMessage{ID: "outbox-9"}))
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewLogPublisher(nil).Publish(cancelledEvent()))
}
