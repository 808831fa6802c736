package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func TestProducer_Send(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"ok":true}` {
			return sarama.ErrInvalidMessage
		}
		return nil
	})

	producer := newProducer(mockProducer, nil)
	require.NoError(t, producer.Send(TopicOrderEvents, "order-1", []byte(`{"ok":true}`)))
	require.NoError(t, producer.Close())
}

func TestProducer_Send_Error(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := newProducer(mockProducer, nil)
	err := producer.Send(TopicOrderEvents, "order-1", []byte(`{}`))
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.ErrorContains(t, err, TopicOrderEvents)
	require.NoError(t, producer.Close())
}

func TestProducer_NilIsNotInitialized(t *testing.T) {
	t.Parallel()

	var producer *Producer
	require.Error(t, producer.Send(TopicOrderEvents, "k", nil))
	require.NoError(t, producer.Close())
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := NewProducer(nil, "", nil)
	require.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	msg := buildMessage("topic-a", "order-7", []byte("v"), []Header{
		{Key: HeaderEventType, Value: "order.created"},
		{Key: HeaderOutboxID, Value: "out-1"},
	})

	require.Equal(t, "topic-a", msg.Topic)
	key, err := msg.Key.Encode()
	require.NoError(t, err)
	require.Equal(t, "order-7", string(key))
	require.Len(t, msg.Headers, 2)
	require.Equal(t, HeaderEventType, string(msg.Headers[0].Key))
	require.Equal(t, "order.created", string(msg.Headers[0].Value))

	require.Nil(t, buildMessage("topic-a", "", nil, nil).Key)
}

func TestProducer_PingWithoutClient(t *testing.T) {
	t.Parallel()

	var missing *Producer
	require.Error(t, missing.Ping())

	producer := newProducer(mocks.NewSyncProducer(t, nil), nil)
	require.NoError(t, producer.Ping())
	require.NoError(t, producer.Close())
}
