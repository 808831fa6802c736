package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
	healthcheck "github.com/sahaalaf/sashop/internal/health"
	"github.com/sahaalaf/sashop/internal/messaging/kafka"
)

// outboxPublishers — куда outbox-воркер отправляет события и недоставленные записи.
type outboxPublishers struct {
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

// initOutboxPublishers подключает Kafka, если заданы брокеры.
// Без брокеров события только пишутся в лог.
func initOutboxPublishers(cfg Config, logger *log.Entry) (outboxPublishers, error) {
	brokers := cfg.kafkaBrokers()
	if len(brokers) == 0 {
		logger.Warn("SASHOP_KAFKA_BROKERS is empty, outbox events are written to the log")
		return outboxPublishers{
			events: kafka.NewLogPublisher(logger.WithField("component", "outbox-log")),
		}, nil
	}

	producer, err := kafka.NewProducer(brokers, cfg.KafkaClientID, logger.WithField("component", "kafka-producer"))
	if err != nil {
		return outboxPublishers{}, err
	}

	logger.WithFields(log.Fields{
		"brokers": brokers,
		"topic":   cfg.KafkaTopic,
		"dlq":     cfg.KafkaDLQTopic,
	}).Info("kafka producer initialized")
	return outboxPublishers{
		events:   kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		dlq:      kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic, cfg.KafkaTopic),
		producer: producer,
	}, nil
}

// checker сообщает о недоступном брокере как о деградации: заказы продолжают приниматься.
func (p outboxPublishers) checker() healthcheck.Checker {
	if p.producer == nil {
		return nil
	}
	return healthcheck.NewOptionalChecker("kafka", func(context.Context) error {
		return p.producer.Ping()
	})
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
