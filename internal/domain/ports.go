package domain

import (
	"context"
	"time"
)

// UnitOfWork задаёт транзакционную границу, в которой заказ и склад фиксируются вместе.
// Ошибка fn или отмена ctx откатывают все изменения.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx — набор репозиториев, работающих в одной транзакции.
type Tx interface {
	Orders() OrderRepository
	Stock() StockRepository
	Catalog() CatalogReader
	Vehicles() VehicleRepository
	Timeline() TimelineWriter
	Outbox() OutboxWriter
}

// CatalogReader отдаёт снимок цены и остатка на текущий момент.
type CatalogReader interface {
	// GetOil возвращает масло или NotFoundError, если позиции нет или это не масло.
	GetOil(ctx context.Context, id string) (CatalogItem, error)
	// GetPart возвращает запчасть или NotFoundError.
	GetPart(ctx context.Context, id string) (CatalogItem, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxWriter ставит событие в outbox в рамках текущей транзакции.
type OutboxWriter interface {
	// Enqueue возвращает ErrDuplicate, если сообщение с таким ID уже стоит в outbox.
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository используется воркером публикации.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineWriter дописывает событие истории заказа в текущей транзакции.
type TimelineWriter interface {
	Append(ctx context.Context, event TimelineEvent) error
}

// TimelineReader читает историю заказа.
type TimelineReader interface {
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Pinger проверяет доступность внешнего хранилища для health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Типы агрегатов в outbox.
const (
	AggregateServiceOrder = "service_order"
	AggregateCatalogItem  = "catalog_item"
	AggregateVehicle      = "vehicle"
)

// Типы событий в outbox.
const (
	EventOrderCreated       = "service_order.created"
	EventOrderUpdated       = "service_order.updated"
	EventOrderVoided        = "service_order.voided"
	EventStockLow           = "stock.low"
	EventStockRestocked     = "stock.restocked"
	EventServiceReminderDue = "service.reminder_due"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
