package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// pgTx — репозитории поверх одной транзакции БД.
type pgTx struct {
	tx    *sql.Tx
	clock func() time.Time
}

func (t *pgTx) Orders() domain.OrderRepository     { return txOrders{t.tx} }
func (t *pgTx) Stock() domain.StockRepository      { return txStock{t.tx} }
func (t *pgTx) Catalog() domain.CatalogReader      { return txCatalog{t.tx} }
func (t *pgTx) Vehicles() domain.VehicleRepository { return txVehicles{t.tx} }
func (t *pgTx) Timeline() domain.TimelineWriter    { return txTimeline{t.tx} }
func (t *pgTx) Outbox() domain.OutboxWriter        { return txOutbox{tx: t.tx, clock: t.clock} }

type txOrders struct{ tx *sql.Tx }

func (r txOrders) Create(ctx context.Context, order domain.ServiceOrder) error {
	placeholders := make([]string, 0, 28)
	for i := 1; i <= 28; i++ {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
	}
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO service_orders (`+orderColumns+`) VALUES (`+strings.Join(placeholders, ",")+`)`,
		orderArgs(order)...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order %s", domain.ErrDuplicate, order.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("insert order %s: %w", order.ID, domain.ErrNotFound)
		}
		return classify("insert order", err)
	}
	return writeLines(ctx, r.tx, order)
}

func (r txOrders) GetForUpdate(ctx context.Context, id string) (domain.ServiceOrder, error) {
	order, err := scanOrder(r.tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM service_orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ServiceOrder{}, domain.NewNotFound(domain.EntityOrder, id)
		}
		return domain.ServiceOrder{}, classify("select order for update", err)
	}
	lines, err := loadLines(ctx, r.tx, []string{id})
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	order.Lines = lines[id]
	return order, nil
}

func (r txOrders) Save(ctx context.Context, order domain.ServiceOrder) error {
	// orderArgs без created_at; версия сравнивается в WHERE, в строку пишется version + 1.
	args := orderArgs(order)
	args = append(args[:26:26], order.UpdatedAt)
	res, err := r.tx.ExecContext(ctx, `
		UPDATE service_orders
		SET vehicle_id = $2, oil_id = $3, oil_name = $4, oil_litres = $5, oil_unit_price_minor = $6,
		    service_fee_minor = $7, discount_percent = $8, discount_amount_minor = $9, discount_reason = $10,
		    odometer_at_service = $11, service_date = $12, next_service_odometer = $13, next_service_date = $14,
		    notes = $15, oil_subtotal_minor = $16, parts_subtotal_minor = $17, products_subtotal_minor = $18,
		    gross_total_minor = $19, percent_discount_minor = $20, applied_discount_minor = $21, total_minor = $22,
		    status = $23, void_reason = $24, voided_at = $25, version = version + 1, updated_at = $27
		WHERE id = $1
		  AND version = $26
	`, args...)
	if err != nil {
		return classify("update order", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM service_orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return classify("check order exists", err)
		}
		if !exists {
			return domain.NewNotFound(domain.EntityOrder, order.ID)
		}
		return fmt.Errorf("%w: order %s changed since version %d", domain.ErrConcurrentModification, order.ID, order.Version)
	}
	return writeLines(ctx, r.tx, order)
}

type txStock struct{ tx *sql.Tx }

func (r txStock) LockItems(ctx context.Context, ids []string) (map[string]domain.CatalogItem, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	rows, err := r.tx.QueryContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, classify("lock catalog items", err)
	}
	defer rows.Close()

	result := make(map[string]domain.CatalogItem, len(sorted))
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		result[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate locked items", err)
	}
	for _, id := range sorted {
		if _, ok := result[id]; !ok {
			return nil, domain.NewNotFound(domain.EntityCatalogItem, id)
		}
	}
	return result, nil
}

func (r txStock) Apply(ctx context.Context, adjustments []domain.StockAdjustment) error {
	for _, adjustment := range adjustments {
		if adjustment.Balance.IsNegative() {
			return fmt.Errorf("%w: item %s balance %s", domain.ErrInsufficientStock, adjustment.ItemID, adjustment.Balance.String())
		}
		var orderID sql.NullString
		if adjustment.OrderID != "" {
			orderID = sql.NullString{String: adjustment.OrderID, Valid: true}
		}
		if _, err := r.tx.ExecContext(ctx, `
			INSERT INTO stock_adjustments (
				id, item_id, delta, balance, quantity_scale, reason, order_id, note, occurred_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			adjustment.ID, adjustment.ItemID, adjustment.Delta.Decimal(), adjustment.Balance.Decimal(),
			adjustment.Balance.Scale(), string(adjustment.Reason), orderID, adjustment.Note, adjustment.Occurred,
		); err != nil {
			return classify("insert stock adjustment", err)
		}

		res, err := r.tx.ExecContext(ctx, `
			UPDATE catalog_items
			SET stock_quantity = $2, updated_at = $3
			WHERE id = $1
		`, adjustment.ItemID, adjustment.Balance.Decimal(), adjustment.Occurred)
		if err != nil {
			return classify("update stock quantity", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return domain.NewNotFound(domain.EntityCatalogItem, adjustment.ItemID)
		}
	}
	return nil
}

type txCatalog struct{ tx *sql.Tx }

func (r txCatalog) GetOil(ctx context.Context, id string) (domain.CatalogItem, error) {
	return r.get(ctx, id, domain.CatalogKindOil, domain.EntityOil)
}

func (r txCatalog) GetPart(ctx context.Context, id string) (domain.CatalogItem, error) {
	return r.get(ctx, id, domain.CatalogKindPart, domain.EntityPart)
}

func (r txCatalog) get(ctx context.Context, id string, kind domain.CatalogKind, entity string) (domain.CatalogItem, error) {
	item, err := scanCatalogItem(r.tx.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items WHERE id = $1 AND kind = $2`, id, string(kind)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CatalogItem{}, domain.NewNotFound(entity, id)
		}
		return domain.CatalogItem{}, classify("select catalog item", err)
	}
	return item, nil
}

type txVehicles struct{ tx *sql.Tx }

func (r txVehicles) Get(ctx context.Context, id string) (domain.Vehicle, error) {
	vehicle, err := scanVehicle(r.tx.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Vehicle{}, domain.NewNotFound(domain.EntityVehicle, id)
		}
		return domain.Vehicle{}, classify("select vehicle", err)
	}
	return vehicle, nil
}

func (r txVehicles) AdvanceOdometer(ctx context.Context, id string, odometer int64, at time.Time) error {
	if _, err := r.tx.ExecContext(ctx, `
		UPDATE vehicles
		SET odometer = $2, updated_at = $3
		WHERE id = $1 AND odometer < $2
	`, id, odometer, at); err != nil {
		return classify("advance odometer", err)
	}
	return nil
}

type txTimeline struct{ tx *sql.Tx }

func (r txTimeline) Append(ctx context.Context, event domain.TimelineEvent) error {
	if _, err := r.tx.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, reason, version, total_minor, occurred)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, event.OrderID, event.Type, event.Reason, event.Version, event.Total.Minor(), event.Occurred); err != nil {
		return classify("append timeline event", err)
	}
	return nil
}

type txOutbox struct {
	tx    *sql.Tx
	clock func() time.Time
}

func (r txOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return insertOutbox(ctx, r.tx, msg, r.clock())
}

var _ domain.Tx = (*pgTx)(nil)
