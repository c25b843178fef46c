// Package alerts обрабатывает складские события и напоминания, пришедшие из Kafka.
package alerts

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shiftlab/internal/metrics"
)

// Handler пишет оповещения для мастера смены: что дозаказать и кому напомнить о замене масла.
type Handler struct {
	logger  *log.Entry
	metrics *metrics.AlertMetrics
}

// NewHandler создаёт обработчик. metrics может быть nil.
func NewHandler(logger *log.Entry, m *metrics.AlertMetrics) *Handler {
	if logger == nil {
		logger = log.WithField("component", "alerts")
	}
	return &Handler{logger: logger, metrics: m}
}

// Handle разбирает конверт и логирует оповещение. Ошибка разбора отправит сообщение в DLQ.
func (h *Handler) Handle(_ context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseEnvelope(message)
	if err != nil {
		return err
	}

	switch envelope.EventType {
	case domain.EventStockLow, domain.EventStockRestocked:
		payload, err := kafka.DecodePayload[domain.StockEventPayload](envelope)
		if err != nil {
			return err
		}
		if payload.ItemID == "" {
			return fmt.Errorf("%s event %s has no item id", envelope.EventType, envelope.ID)
		}
		entry := h.logger.WithFields(log.Fields{
			"item_id":           payload.ItemID,
			"item_name":         payload.Name,
			"stock_quantity":    payload.StockQuantity,
			"reorder_threshold": payload.ReorderThreshold,
		})
		if envelope.EventType == domain.EventStockLow {
			entry.Warn("item reached reorder threshold")
		} else {
			entry.Info("item restocked")
		}

	case domain.EventServiceReminderDue:
		payload, err := kafka.DecodePayload[domain.ReminderEventPayload](envelope)
		if err != nil {
			return err
		}
		if payload.VehicleID == "" {
			return fmt.Errorf("reminder event %s has no vehicle id", envelope.ID)
		}
		fields := log.Fields{
			"vehicle_id": payload.VehicleID,
			"client_id":  payload.ClientID,
			"plate":      payload.Plate,
			"urgent":     payload.Urgent,
		}
		if payload.DaysRemaining != nil {
			fields["days_remaining"] = *payload.DaysRemaining
		}
		if payload.KmRemaining != nil {
			fields["km_remaining"] = *payload.KmRemaining
		}
		h.logger.WithFields(fields).Info("vehicle is due for oil change")

	default:
		h.logger.WithField("event_type", envelope.EventType).Debug("event ignored")
		return nil
	}

	h.metrics.RecordHandled(envelope.EventType)
	return nil
}

// Topics — topics, на которые подписывается обработчик.
func Topics() []string {
	return []string{kafka.TopicStockEvents, kafka.TopicReminderEvents}
}
