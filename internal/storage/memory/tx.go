package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// tx копит изменения одной транзакции до фиксации.
type tx struct {
	store *Store
	held  []string

	created     map[string]domain.ServiceOrder
	saved       map[string]domain.ServiceOrder
	items       map[string]domain.CatalogItem
	adjustments []domain.StockAdjustment
	vehicles    map[string]domain.Vehicle
	events      []domain.TimelineEvent
	messages    []domain.OutboxMessage
}

func newTx(store *Store) *tx {
	return &tx{
		store:    store,
		created:  make(map[string]domain.ServiceOrder),
		saved:    make(map[string]domain.ServiceOrder),
		items:    make(map[string]domain.CatalogItem),
		vehicles: make(map[string]domain.Vehicle),
	}
}

func (t *tx) Orders() domain.OrderRepository     { return txOrders{t} }
func (t *tx) Stock() domain.StockRepository      { return txStock{t} }
func (t *tx) Catalog() domain.CatalogReader      { return txCatalog{t} }
func (t *tx) Vehicles() domain.VehicleRepository { return txVehicles{t} }
func (t *tx) Timeline() domain.TimelineWriter    { return txTimeline{t} }
func (t *tx) Outbox() domain.OutboxWriter        { return txOutbox{t} }

func (t *tx) lock(ctx context.Context, key string) error {
	for _, held := range t.held {
		if held == key {
			return nil
		}
	}
	if err := t.store.locks.acquire(ctx, key); err != nil {
		return err
	}
	t.held = append(t.held, key)
	return nil
}

func (t *tx) releaseLocks() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.store.locks.release(t.held[i])
	}
	t.held = nil
}

// item возвращает позицию с учётом изменений транзакции.
func (t *tx) item(id string) (domain.CatalogItem, bool) {
	if item, ok := t.items[id]; ok {
		return item, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	item, ok := t.store.catalog[id]
	return item, ok
}

type txOrders struct{ t *tx }

func (r txOrders) Create(ctx context.Context, order domain.ServiceOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.t.created[order.ID]; ok {
		return fmt.Errorf("%w: order %s", domain.ErrDuplicate, order.ID)
	}
	r.t.store.mu.RLock()
	_, exists := r.t.store.orders[order.ID]
	r.t.store.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: order %s", domain.ErrDuplicate, order.ID)
	}
	r.t.created[order.ID] = order.Clone()
	return nil
}

func (r txOrders) GetForUpdate(ctx context.Context, id string) (domain.ServiceOrder, error) {
	if err := r.t.lock(ctx, "order:"+id); err != nil {
		return domain.ServiceOrder{}, err
	}
	if order, ok := r.t.saved[id]; ok {
		return order.Clone(), nil
	}
	if order, ok := r.t.created[id]; ok {
		return order.Clone(), nil
	}

	r.t.store.mu.RLock()
	defer r.t.store.mu.RUnlock()
	order, ok := r.t.store.orders[id]
	if !ok {
		return domain.ServiceOrder{}, domain.NewNotFound(domain.EntityOrder, id)
	}
	return order.Clone(), nil
}

func (r txOrders) Save(ctx context.Context, order domain.ServiceOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.t.saved[order.ID] = order.Clone()
	return nil
}

type txStock struct{ t *tx }

func (r txStock) LockItems(ctx context.Context, ids []string) (map[string]domain.CatalogItem, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	result := make(map[string]domain.CatalogItem, len(sorted))
	for _, id := range sorted {
		if err := r.t.lock(ctx, "item:"+id); err != nil {
			return nil, err
		}
		item, ok := r.t.item(id)
		if !ok {
			return nil, domain.NewNotFound(domain.EntityCatalogItem, id)
		}
		result[id] = item
	}
	return result, nil
}

func (r txStock) Apply(ctx context.Context, adjustments []domain.StockAdjustment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, adjustment := range adjustments {
		item, ok := r.t.item(adjustment.ItemID)
		if !ok {
			return domain.NewNotFound(domain.EntityCatalogItem, adjustment.ItemID)
		}
		if adjustment.Balance.IsNegative() {
			return fmt.Errorf("%w: item %s balance %s", domain.ErrInsufficientStock, item.ID, adjustment.Balance.String())
		}
		item.StockQuantity = adjustment.Balance
		item.UpdatedAt = adjustment.Occurred
		r.t.items[item.ID] = item
		r.t.adjustments = append(r.t.adjustments, adjustment)
	}
	return nil
}

type txCatalog struct{ t *tx }

func (r txCatalog) GetOil(_ context.Context, id string) (domain.CatalogItem, error) {
	item, ok := r.t.item(id)
	if !ok || item.Kind != domain.CatalogKindOil {
		return domain.CatalogItem{}, domain.NewNotFound(domain.EntityOil, id)
	}
	return item, nil
}

func (r txCatalog) GetPart(_ context.Context, id string) (domain.CatalogItem, error) {
	item, ok := r.t.item(id)
	if !ok || item.Kind != domain.CatalogKindPart {
		return domain.CatalogItem{}, domain.NewNotFound(domain.EntityPart, id)
	}
	return item, nil
}

type txVehicles struct{ t *tx }

func (r txVehicles) Get(_ context.Context, id string) (domain.Vehicle, error) {
	r.t.store.mu.RLock()
	vehicle, ok := r.t.store.vehicles[id]
	r.t.store.mu.RUnlock()
	if !ok {
		return domain.Vehicle{}, domain.NewNotFound(domain.EntityVehicle, id)
	}
	if staged, ok := r.t.vehicles[id]; ok && staged.Odometer > vehicle.Odometer {
		vehicle.Odometer = staged.Odometer
		vehicle.UpdatedAt = staged.UpdatedAt
	}
	return vehicle, nil
}

func (r txVehicles) AdvanceOdometer(ctx context.Context, id string, odometer int64, at time.Time) error {
	vehicle, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if odometer <= vehicle.Odometer {
		return nil
	}
	vehicle.Odometer = odometer
	vehicle.UpdatedAt = at
	r.t.vehicles[id] = vehicle
	return nil
}

type txTimeline struct{ t *tx }

func (r txTimeline) Append(_ context.Context, event domain.TimelineEvent) error {
	r.t.events = append(r.t.events, event)
	return nil
}

type txOutbox struct{ t *tx }

func (r txOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.t.messages = append(r.t.messages, msg)
	return msg, nil
}

var _ domain.Tx = (*tx)(nil)
