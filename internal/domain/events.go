package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderEventPayload — тело событий service_order.*.
type OrderEventPayload struct {
	OrderID     string    `json:"order_id"`
	VehicleID   string    `json:"vehicle_id"`
	Status      string    `json:"status"`
	Version     int64     `json:"version"`
	Total       string    `json:"total"`
	ServiceDate string    `json:"service_date"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// StockEventPayload — тело событий stock.low и stock.restocked.
type StockEventPayload struct {
	ItemID           string    `json:"item_id"`
	Kind             string    `json:"kind"`
	Name             string    `json:"name"`
	StockQuantity    string    `json:"stock_quantity"`
	ReorderThreshold string    `json:"reorder_threshold"`
	Delta            string    `json:"delta,omitempty"`
	OrderID          string    `json:"order_id,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// ReminderEventPayload — тело события service.reminder_due.
type ReminderEventPayload struct {
	VehicleID     string    `json:"vehicle_id"`
	ClientID      string    `json:"client_id,omitempty"`
	Plate         string    `json:"plate,omitempty"`
	OrderID       string    `json:"order_id"`
	DaysRemaining *int      `json:"days_remaining,omitempty"`
	KmRemaining   *int64    `json:"km_remaining,omitempty"`
	Urgent        bool      `json:"urgent"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewOrderEventPayload собирает тело события по состоянию заказа.
func NewOrderEventPayload(order ServiceOrder, reason string, at time.Time) OrderEventPayload {
	return OrderEventPayload{
		OrderID:     order.ID,
		VehicleID:   order.VehicleID,
		Status:      string(order.Status),
		Version:     order.Version,
		Total:       order.Totals.Total.String(),
		ServiceDate: order.ServiceDate.Format(time.DateOnly),
		Reason:      reason,
		OccurredAt:  at,
	}
}

// NewOutboxMessage сериализует payload в JSON и заполняет адресные поля сообщения.
// ID назначает хранилище при постановке в очередь.
func NewOutboxMessage(aggregateType, aggregateID, eventType string, payload any) (OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}, nil
}
