package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "shiftlab.service-order.events"
	TopicStockEvents     = "shiftlab.stock.events"
	TopicReminderEvents  = "shiftlab.reminder.events"
	TopicDeadLetterQueue = "shiftlab.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope — формат сообщения, в котором outbox-событие уходит в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(event domain.OutboxMessage, publishedAt time.Time) Envelope {
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   publishedAt,
	}
}

// Key — ключ партиционирования: события одного агрегата попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// TopicFor выбирает topic по типу события.
func TopicFor(eventType string) string {
	switch {
	case strings.HasPrefix(eventType, "stock."):
		return TopicStockEvents
	case strings.HasPrefix(eventType, "service."):
		return TopicReminderEvents
	default:
		return TopicOrderEvents
	}
}

// ParseEnvelope разбирает сообщение из Kafka.
func ParseEnvelope(message *sarama.ConsumerMessage) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if envelope.EventType == "" {
		envelope.EventType = headerValue(message, HeaderEventType)
	}
	if envelope.EventType == "" {
		return Envelope{}, fmt.Errorf("envelope at offset %d has no event type", message.Offset)
	}
	return envelope, nil
}

// DecodePayload разбирает payload конверта в типизированное событие.
func DecodePayload[T any](envelope Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal %s payload: %w", envelope.EventType, err)
	}
	return payload, nil
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}
