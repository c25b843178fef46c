// Package lifecycle управляет жизненным циклом сервисного заказа: создание,
// редактирование и аннулирование вместе с движением склада в одной транзакции.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/metrics"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/inventory"
)

// Store — всё, что сервису нужно от хранилища.
type Store interface {
	domain.UnitOfWork
	domain.OrderQueries
	domain.StockQueries
	TimelineReader() domain.TimelineReader
}

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Logger   *log.Entry
	Metrics  *metrics.LifecycleMetrics
	Clock    func() time.Time
	Location *time.Location
	NewID    func() string
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики операций.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithLocation задаёт часовой пояс мастерской, в котором считается «сегодня».
func WithLocation(loc *time.Location) Option {
	return func(opts *Options) {
		opts.Location = loc
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов и строк.
func WithIDGenerator(newID func() string) Option {
	return func(opts *Options) {
		opts.NewID = newID
	}
}

// Service — контроллер жизненного цикла заказа.
type Service struct {
	store    Store
	ledger   *inventory.Ledger
	validate *validator.Validate
	logger   *log.Entry
	metrics  *metrics.LifecycleMetrics
	clock    func() time.Time
	location *time.Location
	newID    func() string
}

// NewService создаёт сервис поверх хранилища и складского журнала.
func NewService(store Store, ledger *inventory.Ledger, options ...Option) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-lifecycle")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	location := opts.Location
	if location == nil {
		location = time.UTC
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Service{
		store:    store,
		ledger:   ledger,
		validate: newValidator(),
		logger:   logger,
		metrics:  opts.Metrics,
		clock:    clock,
		location: location,
		newID:    newID,
	}
}

// Location возвращает часовой пояс мастерской.
func (s *Service) Location() *time.Location {
	return s.location
}

// Create оформляет заказ: фиксирует цены каталога, списывает склад и сохраняет заказ.
// При нехватке любой позиции ничего не меняется.
func (s *Service) Create(ctx context.Context, cmd CreateOrderCommand) (order domain.ServiceOrder, err error) {
	done := s.metrics.Start(metrics.OpCreate)
	defer func() { done(err) }()

	now := s.clock()
	in, err := s.parseInput(cmd.Input, now)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	orderID := cmd.OrderID
	if orderID == "" {
		orderID = s.newID()
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		vehicle, err := tx.Vehicles().Get(ctx, in.VehicleID)
		if err != nil {
			return err
		}
		if in.OdometerAtService < vehicle.Odometer {
			return domain.NewValidationError("odometer_at_service",
				fmt.Sprintf("must not be lower than the vehicle odometer %d", vehicle.Odometer))
		}

		built, err := s.assemble(ctx, tx, in, nil)
		if err != nil {
			return err
		}
		built.ID = orderID
		built.Status = domain.OrderStatusActive
		built.Version = 1
		built.CreatedAt = now
		built.UpdatedAt = now
		if err := built.CheckInvariants(); err != nil {
			return err
		}

		if err := s.ledger.Reserve(ctx, tx, built.ID, built.StockLines()); err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, built); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := tx.Vehicles().AdvanceOdometer(ctx, built.VehicleID, built.OdometerAtService, now); err != nil {
			return fmt.Errorf("advance odometer: %w", err)
		}
		if err := s.record(ctx, tx, built, domain.TimelineOrderCreated, domain.EventOrderCreated, "", now); err != nil {
			return err
		}
		order = built
		return nil
	})
	if err != nil {
		s.logFailure(err, orderID, "create")
		return domain.ServiceOrder{}, err
	}

	s.metrics.RecordRevenue(order.Totals.Total)
	s.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"vehicle_id": order.VehicleID,
		"total":      order.Totals.Total.String(),
	}).Info("service order created")
	return order, nil
}

// Update заменяет содержимое заказа и переводит склад на разницу между версиями.
func (s *Service) Update(ctx context.Context, cmd UpdateOrderCommand) (order domain.ServiceOrder, err error) {
	done := s.metrics.Start(metrics.OpUpdate)
	defer func() { done(err) }()

	now := s.clock()
	target := validateTarget(cmd.OrderID, cmd.ExpectedVersion)
	in, parseErr := s.parseInput(cmd.Input, now)
	var inputErr *domain.ValidationError
	if errors.As(parseErr, &inputErr) {
		target.Problems = append(target.Problems, inputErr.Problems...)
	}
	if err := target.OrNil(); err != nil {
		return domain.ServiceOrder{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := s.loadForChange(ctx, tx, cmd.OrderID, cmd.ExpectedVersion)
		if err != nil {
			return err
		}
		if _, err := tx.Vehicles().Get(ctx, in.VehicleID); err != nil {
			return err
		}

		next, err := s.assemble(ctx, tx, in, &current)
		if err != nil {
			return err
		}
		next.ID = current.ID
		next.Status = domain.OrderStatusActive
		next.Version = current.Version
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = now
		if err := next.CheckInvariants(); err != nil {
			return err
		}

		if err := s.ledger.ApplyDelta(ctx, tx, next.ID, current.StockLines(), next.StockLines()); err != nil {
			return err
		}
		if err := tx.Orders().Save(ctx, next); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		next.Version++
		if err := tx.Vehicles().AdvanceOdometer(ctx, next.VehicleID, next.OdometerAtService, now); err != nil {
			return fmt.Errorf("advance odometer: %w", err)
		}
		if err := s.record(ctx, tx, next, domain.TimelineOrderUpdated, domain.EventOrderUpdated, "", now); err != nil {
			return err
		}
		order = next
		return nil
	})
	if err != nil {
		s.logFailure(err, cmd.OrderID, "update")
		return domain.ServiceOrder{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"version":  order.Version,
		"total":    order.Totals.Total.String(),
	}).Info("service order updated")
	return order, nil
}

// Void аннулирует заказ: возвращает на склад всё, что он списал, и сохраняет запись для истории.
func (s *Service) Void(ctx context.Context, cmd VoidOrderCommand) (order domain.ServiceOrder, err error) {
	done := s.metrics.Start(metrics.OpVoid)
	defer func() { done(err) }()

	problems := validateTarget(cmd.OrderID, cmd.ExpectedVersion)
	if len(cmd.Reason) > 200 {
		problems.Add("reason", "must be at most 200 characters")
	}
	if err := problems.OrNil(); err != nil {
		return domain.ServiceOrder{}, err
	}

	now := s.clock()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := s.loadForChange(ctx, tx, cmd.OrderID, cmd.ExpectedVersion)
		if err != nil {
			return err
		}

		if err := s.ledger.Release(ctx, tx, current.ID, current.StockLines()); err != nil {
			return err
		}

		voided := current.Clone()
		voided.Status = domain.OrderStatusVoided
		voided.VoidReason = cmd.Reason
		voided.VoidedAt = &now
		voided.UpdatedAt = now
		if err := voided.CheckInvariants(); err != nil {
			return err
		}
		if err := tx.Orders().Save(ctx, voided); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		voided.Version++
		if err := s.record(ctx, tx, voided, domain.TimelineOrderVoided, domain.EventOrderVoided, cmd.Reason, now); err != nil {
			return err
		}
		order = voided
		return nil
	})
	if err != nil {
		s.logFailure(err, cmd.OrderID, "void")
		return domain.ServiceOrder{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"version":  order.Version,
		"reason":   order.VoidReason,
	}).Info("service order voided")
	return order, nil
}

// loadForChange блокирует заказ и сверяет версию, которую видел вызывающий.
func (s *Service) loadForChange(ctx context.Context, tx domain.Tx, orderID string, expectedVersion int64) (domain.ServiceOrder, error) {
	current, err := tx.Orders().GetForUpdate(ctx, orderID)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	if current.IsVoided() {
		return domain.ServiceOrder{}, fmt.Errorf("%w: %s", domain.ErrOrderVoided, orderID)
	}
	if current.Version != expectedVersion {
		return domain.ServiceOrder{}, fmt.Errorf("%w: order %s has version %d, expected %d",
			domain.ErrConcurrentModification, orderID, current.Version, expectedVersion)
	}
	return current, nil
}

// record дописывает событие в историю заказа и в outbox.
func (s *Service) record(ctx context.Context, tx domain.Tx, order domain.ServiceOrder, timelineType, eventType, reason string, now time.Time) error {
	if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     timelineType,
		Reason:   reason,
		Version:  order.Version,
		Total:    order.Totals.Total,
		Occurred: now,
	}); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}

	msg, err := domain.NewOutboxMessage(domain.AggregateServiceOrder, order.ID, eventType,
		domain.NewOrderEventPayload(order, reason, now))
	if err != nil {
		return err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}

func (s *Service) logFailure(err error, orderID, operation string) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"order_id":  orderID,
		"operation": operation,
	})
	switch metrics.ResultLabel(err) {
	case "validation", "not_found", "insufficient_stock", "conflict", "voided", "canceled":
		entry.Debug("service order operation rejected")
	default:
		entry.Error("service order operation failed")
	}
}

// Restock оформляет приход товара. Количество приводится к точности позиции.
func (s *Service) Restock(ctx context.Context, itemID string, quantity decimal.Decimal, note string) (adjustment domain.StockAdjustment, err error) {
	done := s.metrics.Start(metrics.OpRestock)
	defer func() { done(err) }()

	if itemID == "" {
		return domain.StockAdjustment{}, domain.NewValidationError("item_id", "is required")
	}
	item, err := s.store.GetCatalogItem(ctx, itemID)
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	qty, err := domain.NewQuantity(quantity, item.QuantityScale())
	if err != nil {
		verr := &domain.ValidationError{}
		verr.AddErr("quantity", err)
		return domain.StockAdjustment{}, verr
	}
	return s.ledger.Restock(ctx, itemID, qty, note)
}
