package domain

import (
	"context"
	"time"
)

// OrderRepository описывает запись заказов внутри транзакции.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrDuplicate, если ID уже занят.
	Create(ctx context.Context, order ServiceOrder) error
	// GetForUpdate возвращает заказ и блокирует его до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (ServiceOrder, error)
	// Save перезаписывает заказ, если сохранённая версия равна order.Version (optimistic locking).
	// Версия в хранилище увеличивается на единицу.
	Save(ctx context.Context, order ServiceOrder) error
}

// StockRepository — доступ к остаткам. Пишет в него только складской журнал.
type StockRepository interface {
	// LockItems блокирует позиции до конца транзакции и возвращает их текущее состояние.
	// Отсутствующая позиция даёт NotFoundError.
	LockItems(ctx context.Context, ids []string) (map[string]CatalogItem, error)
	// Apply записывает строки журнала и новые остатки (adjustment.Balance).
	Apply(ctx context.Context, adjustments []StockAdjustment) error
}

// VehicleRepository — доступ к автомобилям внутри транзакции.
type VehicleRepository interface {
	Get(ctx context.Context, id string) (Vehicle, error)
	// AdvanceOdometer поднимает пробег автомобиля, если новое значение больше текущего.
	AdvanceOdometer(ctx context.Context, id string, odometer int64, at time.Time) error
}

// MasterDataWriter загружает справочные данные (автомобили и позиции каталога).
// Для новой позиции задаётся начальный остаток; у существующей остаток не меняется.
type MasterDataWriter interface {
	UpsertVehicle(ctx context.Context, vehicle Vehicle) error
	UpsertCatalogItem(ctx context.Context, item CatalogItem) error
}

// OrderFilter задаёт условия выборки заказов.
type OrderFilter struct {
	VehicleID string
	ClientID  string
	Status    OrderStatus
	From      *time.Time
	To        *time.Time
	Offset    int
	Limit     int
}

// OrderPage — страница заказов и общее количество по фильтру.
type OrderPage struct {
	Orders []ServiceOrder
	Total  int
}

// VehicleLastService — последний действующий заказ автомобиля.
type VehicleLastService struct {
	Vehicle Vehicle
	Order   ServiceOrder
}

// OrderSums — агрегаты по действующим заказам за период.
type OrderSums struct {
	Count          int64
	Revenue        Money
	OilRevenue     Money
	PartsRevenue   Money
	ServiceRevenue Money
	LitresUsed     Quantity
}

// OrderQueries — чтение заказов вне транзакций записи.
type OrderQueries interface {
	GetOrder(ctx context.Context, id string) (ServiceOrder, error)
	ListOrders(ctx context.Context, filter OrderFilter) (OrderPage, error)
	LatestActiveByVehicle(ctx context.Context) ([]VehicleLastService, error)
	SumOrders(ctx context.Context, from, to *time.Time) (OrderSums, error)
}

// StockQueries — чтение складских данных.
type StockQueries interface {
	GetCatalogItem(ctx context.Context, id string) (CatalogItem, error)
	ListAdjustments(ctx context.Context, itemID string, limit int) ([]StockAdjustment, error)
}
