package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
// Пустой topic означает маршрутизацию по типу события (TopicFor).
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// NewDLQPublisher создаёт паблишер, отправляющий всё в dead letter topic.
func NewDLQPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return NewOutboxPublisher(producer, topic)
}

// Publish оборачивает событие в Envelope и отправляет его.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := NewEnvelope(event, p.producer.clock())
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope %s: %w", event.ID, err)
	}

	topic := p.topic
	if topic == "" {
		topic = TopicFor(event.EventType)
	}
	return p.producer.PublishRaw(topic, envelope.Key(), value, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
