package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// GetOrder возвращает заказ со строками.
func (s *Store) GetOrder(ctx context.Context, id string) (domain.ServiceOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM service_orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ServiceOrder{}, domain.NewNotFound(domain.EntityOrder, id)
		}
		return domain.ServiceOrder{}, classify("select order", err)
	}
	lines, err := loadLines(ctx, s.db, []string{id})
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	order.Lines = lines[id]
	return order, nil
}

// ListOrders возвращает страницу заказов, новые сначала. Limit 0 означает «все».
func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.VehicleID != "" {
		add("vehicle_id = $%d", filter.VehicleID)
	}
	if filter.ClientID != "" {
		add("vehicle_id IN (SELECT id FROM vehicles WHERE client_id = $%d)", filter.ClientID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.From != nil {
		add("service_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("service_date <= $%d", *filter.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	page := domain.OrderPage{Orders: []domain.ServiceOrder{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_orders`+where, args...).Scan(&page.Total); err != nil {
		return domain.OrderPage{}, classify("count orders", err)
	}

	query := `SELECT ` + orderColumns + ` FROM service_orders` + where +
		` ORDER BY service_date DESC, created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	orders, err := s.selectOrders(ctx, query, args...)
	if err != nil {
		return domain.OrderPage{}, err
	}
	page.Orders = orders
	return page, nil
}

// LatestActiveByVehicle возвращает для каждого автомобиля последний действующий заказ.
func (s *Store) LatestActiveByVehicle(ctx context.Context) ([]domain.VehicleLastService, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	orders, err := s.selectOrders(ctx, `
		SELECT DISTINCT ON (vehicle_id) `+orderColumns+`
		FROM service_orders
		WHERE status = $1
		ORDER BY vehicle_id, service_date DESC, created_at DESC
	`, string(domain.OrderStatusActive))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.VehicleID)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, classify("select vehicles", err)
	}
	defer rows.Close()

	vehicles := make(map[string]domain.Vehicle, len(ids))
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles[vehicle.ID] = vehicle
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate vehicles", err)
	}

	result := make([]domain.VehicleLastService, 0, len(orders))
	for _, order := range orders {
		vehicle, ok := vehicles[order.VehicleID]
		if !ok {
			continue
		}
		result = append(result, domain.VehicleLastService{Vehicle: vehicle, Order: order})
	}
	return result, nil
}

// SumOrders считает агрегаты по действующим заказам с датой обслуживания в [from, to].
func (s *Store) SumOrders(ctx context.Context, from, to *time.Time) (domain.OrderSums, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		sums   domain.OrderSums
		litres decimal.Decimal
	)
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_minor), 0),
		       COALESCE(SUM(oil_subtotal_minor), 0),
		       COALESCE(SUM(parts_subtotal_minor), 0),
		       COALESCE(SUM(service_fee_minor), 0),
		       COALESCE(SUM(oil_litres), 0)
		FROM service_orders
		WHERE status = $1
		  AND ($2::date IS NULL OR service_date >= $2::date)
		  AND ($3::date IS NULL OR service_date <= $3::date)
	`, string(domain.OrderStatusActive), nullTime(from), nullTime(to)).Scan(
		&sums.Count, &sums.Revenue, &sums.OilRevenue, &sums.PartsRevenue, &sums.ServiceRevenue, &litres,
	); err != nil {
		return domain.OrderSums{}, classify("sum orders", err)
	}

	qty, err := domain.NewQuantity(litres, domain.LitresScale)
	if err != nil {
		return domain.OrderSums{}, fmt.Errorf("litres used: %w", err)
	}
	sums.LitresUsed = qty
	return sums, nil
}

// GetCatalogItem возвращает позицию каталога с текущим остатком.
func (s *Store) GetCatalogItem(ctx context.Context, id string) (domain.CatalogItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item, err := scanCatalogItem(s.db.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CatalogItem{}, domain.NewNotFound(domain.EntityCatalogItem, id)
		}
		return domain.CatalogItem{}, classify("select catalog item", err)
	}
	return item, nil
}

// ListAdjustments возвращает журнал движений позиции, новые сначала.
func (s *Store) ListAdjustments(ctx context.Context, itemID string, limit int) ([]domain.StockAdjustment, error) {
	if _, err := s.GetCatalogItem(ctx, itemID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, item_id, delta, balance, quantity_scale, reason, order_id, note, occurred_at
		FROM stock_adjustments
		WHERE item_id = $1
		ORDER BY seq DESC`
	args := []any{itemID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list stock adjustments", err)
	}
	defer rows.Close()

	result := make([]domain.StockAdjustment, 0)
	for rows.Next() {
		var (
			adj     domain.StockAdjustment
			delta   decimal.Decimal
			balance decimal.Decimal
			scale   int32
			reason  string
			orderID sql.NullString
		)
		if err := rows.Scan(&adj.ID, &adj.ItemID, &delta, &balance, &scale, &reason, &orderID, &adj.Note, &adj.Occurred); err != nil {
			return nil, fmt.Errorf("scan stock adjustment: %w", err)
		}
		// Delta может быть отрицательной, поэтому собирается через разность.
		absDelta, err := domain.NewQuantity(delta.Abs(), scale)
		if err != nil {
			return nil, fmt.Errorf("adjustment %s delta: %w", adj.ID, err)
		}
		if delta.IsNegative() {
			absDelta = absDelta.Neg()
		}
		adj.Delta = absDelta
		if adj.Balance, err = domain.NewQuantity(balance, scale); err != nil {
			return nil, fmt.Errorf("adjustment %s balance: %w", adj.ID, err)
		}
		adj.Reason = domain.AdjustmentReason(reason)
		adj.OrderID = orderID.String
		adj.Occurred = adj.Occurred.UTC()
		result = append(result, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate stock adjustments", err)
	}
	return result, nil
}

// UpsertVehicle создаёт или обновляет автомобиль. Пробег не уменьшается.
func (s *Store) UpsertVehicle(ctx context.Context, vehicle domain.Vehicle) error {
	if vehicle.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	if vehicle.UpdatedAt.IsZero() {
		vehicle.UpdatedAt = s.clock()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET client_id = EXCLUDED.client_id,
		    plate = EXCLUDED.plate,
		    model = EXCLUDED.model,
		    odometer = GREATEST(vehicles.odometer, EXCLUDED.odometer),
		    updated_at = EXCLUDED.updated_at
	`, vehicle.ID, vehicle.ClientID, vehicle.Plate, vehicle.Model, vehicle.Odometer, vehicle.UpdatedAt); err != nil {
		return classify("upsert vehicle", err)
	}
	return nil
}

// UpsertCatalogItem создаёт позицию с начальным остатком или обновляет справочные поля
// существующей, не трогая остаток.
func (s *Store) UpsertCatalogItem(ctx context.Context, item domain.CatalogItem) error {
	if item.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	if !item.Kind.Valid() {
		return domain.NewValidationError("kind", "must be oil or part")
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = s.clock()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_items (`+catalogColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind,
		    name = EXCLUDED.name,
		    unit = EXCLUDED.unit,
		    fractional_unit = EXCLUDED.fractional_unit,
		    unit_price_minor = EXCLUDED.unit_price_minor,
		    unit_cost_minor = EXCLUDED.unit_cost_minor,
		    reorder_threshold = EXCLUDED.reorder_threshold,
		    active = EXCLUDED.active,
		    updated_at = EXCLUDED.updated_at
	`,
		item.ID, string(item.Kind), item.Name, item.Unit, item.FractionalUnit,
		item.UnitPrice.Minor(), item.UnitCost.Minor(),
		item.StockQuantity.Decimal(), item.ReorderThreshold.Decimal(), item.Active, item.UpdatedAt,
	); err != nil {
		return classify("upsert catalog item", err)
	}
	return nil
}

func (s *Store) selectOrders(ctx context.Context, query string, args ...any) ([]domain.ServiceOrder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("select orders", err)
	}
	defer rows.Close()

	orders := make([]domain.ServiceOrder, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate order rows", err)
	}

	lines, err := loadLines(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

type timelineReader struct {
	db *sql.DB
}

// List возвращает события заказа в хронологическом порядке.
func (r timelineReader) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, type, reason, version, total_minor, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, classify("list timeline events", err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var event domain.TimelineEvent
		if err := rows.Scan(&event.OrderID, &event.Type, &event.Reason, &event.Version, &event.Total, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate timeline events", err)
	}
	return events, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var (
	_ domain.OrderQueries     = (*Store)(nil)
	_ domain.StockQueries     = (*Store)(nil)
	_ domain.MasterDataWriter = (*Store)(nil)
	_ domain.TimelineReader   = timelineReader{}
)
