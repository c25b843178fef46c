package domain

import "time"

// Типы событий истории заказа.
const (
	TimelineOrderCreated = "OrderCreated"
	TimelineOrderUpdated = "OrderUpdated"
	TimelineOrderVoided  = "OrderVoided"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Version  int64
	Total    Money
	Occurred time.Time
}
