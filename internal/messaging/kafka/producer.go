package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultClientID = "sashop"

// Header — пара ключ/значение Kafka header.
type Header struct {
	Key   string
	Value string
}

// Producer синхронно публикует сообщения в Kafka.
type Producer struct {
	producer sarama.SyncProducer
	// client задан, только если producer создан через NewProducer.
	client sarama.Client
	logger *log.Entry
}

// NewProducer подключается к брокерам с подтверждением от всех ISR и идемпотентной отправкой.
func NewProducer(brokers []string, clientID string, logger *log.Entry) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	if clientID == "" {
		clientID = defaultClientID
	}

	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("connect to kafka: %w", err)
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := newProducer(producer, logger)
	p.client = client
	return p, nil
}

func newProducer(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{producer: producer, logger: logger}
}

// Send отправляет value в topic и ждёт подтверждения брокера.
func (p *Producer) Send(topic, key string, value []byte, headers ...Header) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka producer is not initialized")
	}

	msg := buildMessage(topic, key, value, headers)
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic": topic,
			"key":   key,
		}).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     topic,
		"key":       key,
		"partition": partition,
		"offset":    offset,
	}).Debug("kafka message sent")
	return nil
}

func buildMessage(topic, key string, value []byte, headers []Header) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.Now(),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	for _, h := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(h.Key), Value: []byte(h.Value)})
	}
	return msg
}

// Ping обновляет метаданные кластера, чтобы убедиться, что брокеры доступны.
func (p *Producer) Ping() error {
	if p == nil || p.producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	if p.client == nil {
		return nil
	}
	if p.client.Closed() {
		return errors.New("kafka client is closed")
	}
	if err := p.client.RefreshMetadata(); err != nil {
		return fmt.Errorf("refresh kafka metadata: %w", err)
	}
	return nil
}

// Close закрывает producer и его клиента.
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	var errs []error
	if err := p.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
	}
	if p.client != nil && !p.client.Closed() {
		if err := p.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka client: %w", err))
		}
	}
	return errors.Join(errs...)
}
