// Package inventory содержит складской журнал: единственный код, который меняет остатки.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/metrics"
)

// LedgerOptions задаёт зависимости складского журнала.
type LedgerOptions struct {
	Logger  *log.Entry
	Metrics *metrics.LedgerMetrics
	Clock   func() time.Time
	NewID   func() string
}

// Option настраивает Ledger.
type Option func(*LedgerOptions)

// WithLogger задаёт logger журнала.
func WithLogger(logger *log.Entry) Option {
	return func(opts *LedgerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики журнала.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(opts *LedgerOptions) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *LedgerOptions) {
		opts.Clock = clock
	}
}

// WithIDGenerator подменяет генератор идентификаторов строк журнала.
func WithIDGenerator(newID func() string) Option {
	return func(opts *LedgerOptions) {
		opts.NewID = newID
	}
}

// Ledger резервирует и возвращает остатки внутри транзакции вызывающего.
//
// Каждая позиция блокируется на уровне хранилища до конца транзакции; блокировки
// берутся в порядке возрастания ID, поэтому пересекающиеся операции не дают deadlock.
// Проверка всех позиций выполняется до записи, частичного списания не бывает.
type Ledger struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.LedgerMetrics
	clock   func() time.Time
	newID   func() string
}

// NewLedger создаёт складской журнал. uow нужен только для Restock.
func NewLedger(uow domain.UnitOfWork, options ...Option) *Ledger {
	opts := LedgerOptions{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "stock-ledger")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Ledger{
		uow:     uow,
		logger:  logger,
		metrics: opts.Metrics,
		clock:   clock,
		newID:   newID,
	}
}

// Reserve списывает количества заказа. Если хотя бы одной позиции не хватает,
// возвращается InsufficientStockError и ни одна позиция не меняется.
func (l *Ledger) Reserve(ctx context.Context, tx domain.Tx, orderID string, lines []domain.StockLine) error {
	changes := make([]domain.StockLine, 0, len(lines))
	for _, line := range lines {
		changes = append(changes, domain.StockLine{ItemID: line.ItemID, Quantity: line.Quantity.Neg()})
	}
	_, err := l.apply(ctx, tx, change{orderID: orderID, reason: domain.AdjustmentOrderCreate, lines: changes})
	return err
}

// Release возвращает количества заказа на склад.
func (l *Ledger) Release(ctx context.Context, tx domain.Tx, orderID string, lines []domain.StockLine) error {
	_, err := l.apply(ctx, tx, change{orderID: orderID, reason: domain.AdjustmentOrderReverse, lines: lines})
	return err
}

// ApplyDelta переводит склад из состояния previous в состояние next одной операцией:
// рост потребления списывается, уменьшение возвращается.
func (l *Ledger) ApplyDelta(ctx context.Context, tx domain.Tx, orderID string, previous, next []domain.StockLine) error {
	deltas := domain.StockDeltas(previous, next)
	changes := make([]domain.StockLine, 0, len(deltas))
	for _, delta := range deltas {
		changes = append(changes, domain.StockLine{ItemID: delta.ItemID, Quantity: delta.Quantity.Neg()})
	}
	_, err := l.apply(ctx, tx, change{orderID: orderID, reason: domain.AdjustmentOrderUpdateDelta, lines: changes})
	return err
}

// Restock оформляет приход товара в собственной транзакции.
func (l *Ledger) Restock(ctx context.Context, itemID string, quantity domain.Quantity, note string) (domain.StockAdjustment, error) {
	if itemID == "" {
		return domain.StockAdjustment{}, domain.NewValidationError("item_id", "is required")
	}
	if !quantity.IsPositive() {
		return domain.StockAdjustment{}, domain.NewValidationError("quantity", "must be greater than zero")
	}
	if len(note) > 200 {
		return domain.StockAdjustment{}, domain.NewValidationError("note", "must be at most 200 characters")
	}

	var result domain.StockAdjustment
	err := l.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		written, err := l.apply(ctx, tx, change{
			reason: domain.AdjustmentRestock,
			note:   note,
			lines:  []domain.StockLine{{ItemID: itemID, Quantity: quantity}},
		})
		if err != nil {
			return err
		}
		result = written[0].adjustment

		msg, err := domain.NewOutboxMessage(domain.AggregateCatalogItem, itemID, domain.EventStockRestocked,
			stockPayload(written[0].item, result))
		if err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue restock event: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}

	l.logger.WithFields(log.Fields{
		"item_id":  itemID,
		"quantity": quantity.String(),
		"balance":  result.Balance.String(),
	}).Info("stock restocked")
	return result, nil
}

type change struct {
	orderID string
	reason  domain.AdjustmentReason
	note    string
	// lines — знаковые изменения остатка: отрицательное значение списывает.
	lines []domain.StockLine
}

type written struct {
	item       domain.CatalogItem
	adjustment domain.StockAdjustment
}

func (l *Ledger) apply(ctx context.Context, tx domain.Tx, c change) ([]written, error) {
	lines := nonZero(domain.AggregateStockLines(c.lines))
	if len(lines) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ItemID)
	}
	sort.Strings(ids)

	items, err := tx.Stock().LockItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lock stock items: %w", err)
	}

	now := l.clock()
	result := make([]written, 0, len(lines))
	adjustments := make([]domain.StockAdjustment, 0, len(lines))
	for _, line := range lines {
		item, ok := items[line.ItemID]
		if !ok {
			return nil, domain.NewNotFound(domain.EntityCatalogItem, line.ItemID)
		}

		delta, err := line.Quantity.WithScale(item.QuantityScale())
		if err != nil {
			verr := &domain.ValidationError{}
			verr.AddErr("quantity", fmt.Errorf("item %s: %w", item.ID, err))
			return nil, verr
		}

		balance := item.StockQuantity.Add(delta)
		if balance.IsNegative() {
			l.metrics.RecordInsufficient()
			return nil, &domain.InsufficientStockError{
				ItemID:    item.ID,
				Requested: delta.Neg(),
				Available: item.StockQuantity,
			}
		}
		balance, _ = balance.WithScale(item.QuantityScale())

		adjustment := domain.StockAdjustment{
			ID:       l.newID(),
			ItemID:   item.ID,
			Delta:    delta,
			Balance:  balance,
			Reason:   c.reason,
			OrderID:  c.orderID,
			Note:     c.note,
			Occurred: now,
		}
		adjustments = append(adjustments, adjustment)
		result = append(result, written{item: item, adjustment: adjustment})
	}

	if err := tx.Stock().Apply(ctx, adjustments); err != nil {
		return nil, fmt.Errorf("apply stock adjustments: %w", err)
	}
	l.metrics.RecordAdjustments(c.reason, len(adjustments))

	for _, w := range result {
		if err := l.signalLowStock(ctx, tx, w); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// signalLowStock ставит событие stock.low, когда остаток впервые опускается до порога.
func (l *Ledger) signalLowStock(ctx context.Context, tx domain.Tx, w written) error {
	after := w.item
	after.StockQuantity = w.adjustment.Balance
	if !w.adjustment.Delta.IsNegative() || w.item.LowStock() || !after.LowStock() {
		return nil
	}

	msg, err := domain.NewOutboxMessage(domain.AggregateCatalogItem, after.ID, domain.EventStockLow,
		stockPayload(w.item, w.adjustment))
	if err != nil {
		return err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue low stock event: %w", err)
	}
	l.metrics.RecordLowStock()
	l.logger.WithFields(log.Fields{
		"item_id":   after.ID,
		"balance":   after.StockQuantity.String(),
		"threshold": after.ReorderThreshold.String(),
	}).Warn("stock reached reorder threshold")
	return nil
}

func stockPayload(item domain.CatalogItem, adjustment domain.StockAdjustment) domain.StockEventPayload {
	return domain.StockEventPayload{
		ItemID:           item.ID,
		Kind:             string(item.Kind),
		Name:             item.Name,
		StockQuantity:    adjustment.Balance.String(),
		ReorderThreshold: item.ReorderThreshold.String(),
		Delta:            adjustment.Delta.String(),
		OrderID:          adjustment.OrderID,
		OccurredAt:       adjustment.Occurred,
	}
}

func nonZero(lines []domain.StockLine) []domain.StockLine {
	result := lines[:0]
	for _, line := range lines {
		if !line.Quantity.IsZero() {
			result = append(result, line)
		}
	}
	return result
}
