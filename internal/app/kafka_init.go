package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shiftlab/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Без брокеров возвращает nil, nil: события остаются в outbox.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers not configured, outbox events stay pending")
		return nil, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer")
		return nil, err
	}

	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return producer, nil
}

// dlqTopic возвращает topic для сообщений, которые не удалось доставить.
func dlqTopic(cfg Config) string {
	if cfg.KafkaDLQTopic != "" {
		return cfg.KafkaDLQTopic
	}
	return kafka.TopicDeadLetterQueue
}

// closeKafka закрывает producer, если он был создан.
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

// stopConsumer останавливает consumer group, если она была запущена.
func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
