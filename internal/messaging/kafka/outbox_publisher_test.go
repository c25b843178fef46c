package kafka

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

func TestOutboxPublisher_PublishRoutesByEventType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		eventType string
		topic     string
	}{
		{domain.EventOrderCreated, TopicOrderEvents},
		{domain.EventOrderVoided, TopicOrderEvents},
		{domain.EventStockLow, TopicStockEvents},
		{domain.EventStockRestocked, TopicStockEvents},
		{domain.EventServiceReminderDue, TopicReminderEvents},
	}

	for _, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			t.Parallel()

			mockProducer := mocks.NewSyncProducer(t, nil)
			mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
				if msg.Topic != tc.topic {
					return fmt.Errorf("expected topic %s, got %s", tc.topic, msg.Topic)
				}
				key, _ := msg.Key.Encode()
				if string(key) != "agg-1" {
					return fmt.Errorf("expected aggregate key, got %s", key)
				}
				return nil
			})

			publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), "")
			require.NoError(t, publisher.Publish(domain.OutboxMessage{
				ID:            "outbox-1",
				AggregateType: domain.AggregateServiceOrder,
				AggregateID:   "agg-1",
				EventType:     tc.eventType,
				Payload:       []byte(`{"x":1}`),
			}))
			require.NoError(t, mockProducer.Close())
		})
	}
}

func TestOutboxPublisher_EnvelopeShape(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope Envelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-2" || envelope.EventType != domain.EventOrderCreated || string(envelope.Payload) != `{"order_id":"o-1"}` {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		if envelope.PublishedAt.IsZero() {
			return fmt.Errorf("published_at must be set")
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), TopicOrderEvents)
	require.NoError(t, publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: domain.AggregateServiceOrder,
		AggregateID:   "o-1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"o-1"}`),
	}))
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewDLQPublisher(NewProducerFromSync(mockProducer, nil), "")
	require.Equal(t, TopicDeadLetterQueue, publisher.topic)
	require.Error(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-3", Payload: []byte(`{}`)}))
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	require.Error(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-4"}))
}

func TestParseEnvelopeAndDecodePayload(t *testing.T) {
	t.Parallel()

	msg := &sarama.ConsumerMessage{
		Offset: 7,
		Value:  []byte(`{"id":"m-1","aggregate_id":"oil-1","payload":{"item_id":"oil-1","stock_quantity":"1.50"}}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(domain.EventStockLow)},
		},
	}
	envelope, err := ParseEnvelope(msg)
	require.NoError(t, err)
	require.Equal(t, domain.EventStockLow, envelope.EventType, "event type falls back to header")
	require.Equal(t, "oil-1", envelope.Key())

	payload, err := DecodePayload[domain.StockEventPayload](envelope)
	require.NoError(t, err)
	require.Equal(t, "1.50", payload.StockQuantity)

	_, err = ParseEnvelope(&sarama.ConsumerMessage{Value: []byte(`{"id":"m-2"}`)})
	require.Error(t, err)
	_, err = ParseEnvelope(&sarama.ConsumerMessage{Value: []byte(`{`)})
	require.Error(t, err)

	_, err = DecodePayload[domain.StockEventPayload](Envelope{EventType: "x", Payload: []byte(`[`)})
	require.Error(t, err)

	require.Equal(t, "m-3", Envelope{ID: "m-3"}.Key())
}
