package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// Store — in-memory хранилище заказов, склада и справочников для разработки и тестов.
//
// Транзакция копит изменения у себя и держит блокировки заказов и позиций склада
// до фиксации. Фиксация применяет всё под одним мьютексом, поэтому читатели
// никогда не видят заказ без соответствующего списания.
type Store struct {
	mu          sync.RWMutex
	orders      map[string]domain.ServiceOrder
	vehicles    map[string]domain.Vehicle
	catalog     map[string]domain.CatalogItem
	adjustments map[string][]domain.StockAdjustment
	timeline    map[string][]domain.TimelineEvent

	outbox *OutboxRepository
	locks  *keyedLocks
	clock  func() time.Time
}

// StoreOption настраивает Store.
type StoreOption func(*Store)

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore создаёт пустое хранилище.
func NewStore(options ...StoreOption) *Store {
	s := &Store{
		orders:      make(map[string]domain.ServiceOrder),
		vehicles:    make(map[string]domain.Vehicle),
		catalog:     make(map[string]domain.CatalogItem),
		adjustments: make(map[string][]domain.StockAdjustment),
		timeline:    make(map[string][]domain.TimelineEvent),
		locks:       newKeyedLocks(),
		clock:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	s.outbox = newOutboxRepository(s.clock)
	return s
}

// Outbox возвращает очередь исходящих событий хранилища.
func (s *Store) Outbox() *OutboxRepository {
	return s.outbox
}

// Ping всегда успешен: хранилище в памяти процесса.
func (s *Store) Ping(context.Context) error {
	return nil
}

// WithinTx выполняет fn в транзакции. Ошибка fn или отмена ctx откатывают изменения.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := newTx(s)
	defer t.releaseLocks()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range t.created {
		if _, exists := s.orders[id]; exists {
			return fmt.Errorf("%w: order %s", domain.ErrDuplicate, id)
		}
	}
	for id, order := range t.saved {
		current, ok := s.orders[id]
		if !ok {
			return domain.NewNotFound(domain.EntityOrder, id)
		}
		if current.Version != order.Version {
			return fmt.Errorf("%w: order %s has version %d, expected %d",
				domain.ErrConcurrentModification, id, current.Version, order.Version)
		}
	}

	for id, order := range t.created {
		s.orders[id] = order.Clone()
	}
	for id, order := range t.saved {
		stored := order.Clone()
		stored.Version++
		s.orders[id] = stored
	}
	for id, item := range t.items {
		s.catalog[id] = item
	}
	for _, adjustment := range t.adjustments {
		s.adjustments[adjustment.ItemID] = append(s.adjustments[adjustment.ItemID], adjustment)
	}
	for id, vehicle := range t.vehicles {
		current, ok := s.vehicles[id]
		if !ok {
			continue
		}
		if vehicle.Odometer > current.Odometer {
			current.Odometer = vehicle.Odometer
			current.UpdatedAt = vehicle.UpdatedAt
			s.vehicles[id] = current
		}
	}
	for _, event := range t.events {
		s.timeline[event.OrderID] = append(s.timeline[event.OrderID], event)
	}
	s.outbox.enqueueAll(t.messages)
	return nil
}

// UpsertVehicle создаёт или обновляет автомобиль. Пробег только растёт.
func (s *Store) UpsertVehicle(_ context.Context, vehicle domain.Vehicle) error {
	if vehicle.ID == "" {
		return domain.NewValidationError("id", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.vehicles[vehicle.ID]; ok && current.Odometer > vehicle.Odometer {
		vehicle.Odometer = current.Odometer
	}
	if vehicle.UpdatedAt.IsZero() {
		vehicle.UpdatedAt = s.clock()
	}
	s.vehicles[vehicle.ID] = vehicle
	return nil
}

// UpsertCatalogItem создаёт позицию с начальным остатком или обновляет справочные поля
// существующей, не трогая остаток.
func (s *Store) UpsertCatalogItem(_ context.Context, item domain.CatalogItem) error {
	if item.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	if !item.Kind.Valid() {
		return domain.NewValidationError("kind", "must be oil or part")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.catalog[item.ID]; ok {
		item.StockQuantity = current.StockQuantity
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = s.clock()
	}
	s.catalog[item.ID] = item
	return nil
}

var (
	_ domain.UnitOfWork       = (*Store)(nil)
	_ domain.MasterDataWriter = (*Store)(nil)
	_ domain.Pinger           = (*Store)(nil)
)
