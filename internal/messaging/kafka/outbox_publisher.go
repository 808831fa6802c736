package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
)

// OutboxTopicPublisher публикует события заказов из outbox в Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт publisher для topic; пустой topic означает TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	body, err := json.Marshal(NewEnvelope(event, p.now()))
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	return p.producer.Send(p.topic, partitionKey(event), body,
		Header{Key: HeaderEventType, Value: event.EventType},
		Header{Key: HeaderAggregateType, Value: event.AggregateType},
		Header{Key: HeaderOutboxID, Value: event.ID},
	)
}

// DLQPublisher отправляет в dead letter queue события, которые не удалось опубликовать.
// Payload уже содержит исходное событие вместе с причиной отказа.
type DLQPublisher struct {
	producer      *Producer
	topic         string
	originalTopic string
}

// NewDLQPublisher создаёт publisher для DLQ; originalTopic попадает в header.
func NewDLQPublisher(producer *Producer, topic, originalTopic string) *DLQPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if originalTopic == "" {
		originalTopic = TopicOrderEvents
	}
	return &DLQPublisher{producer: producer, topic: topic, originalTopic: originalTopic}
}

func (p *DLQPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	return p.producer.Send(p.topic, partitionKey(event), event.Payload,
		Header{Key: HeaderEventType, Value: event.EventType},
		Header{Key: HeaderOutboxID, Value: event.ID},
		Header{Key: HeaderOriginalTopic, Value: p.originalTopic},
		Header{Key: HeaderFailedAt, Value: time.Now().UTC().Format(time.RFC3339Nano)},
	)
}

// LogPublisher пишет события в лог. Используется, когда брокеры Kafka не настроены.
type LogPublisher struct {
	logger *log.Entry
}

func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "order-events")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":  event.ID,
		"event_type": event.EventType,
		"order_id":   event.AggregateID,
		"payload":    string(event.Payload),
	}).Info("order event")
	return nil
}

var (
	_ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
	_ domain.OutboxPublisher = (*DLQPublisher)(nil)
	_ domain.OutboxPublisher = (*LogPublisher)(nil)
)
