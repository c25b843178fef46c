package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

const orderColumns = `
	id, vehicle_id, oil_id, oil_name, oil_litres, oil_unit_price_minor,
	service_fee_minor, discount_percent, discount_amount_minor, discount_reason,
	odometer_at_service, service_date, next_service_odometer, next_service_date, notes,
	oil_subtotal_minor, parts_subtotal_minor, products_subtotal_minor, gross_total_minor,
	percent_discount_minor, applied_discount_minor, total_minor,
	status, void_reason, voided_at, version, created_at, updated_at`

const catalogColumns = `
	id, kind, name, unit, fractional_unit, unit_price_minor, unit_cost_minor,
	stock_quantity, reorder_threshold, active, updated_at`

const vehicleColumns = `id, client_id, plate, model, odometer, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.ServiceOrder, error) {
	var (
		order     domain.ServiceOrder
		litres    decimal.Decimal
		status    string
		nextKm    sql.NullInt64
		nextDate  sql.NullTime
		voidedAt  sql.NullTime
		totals    = &order.Totals
		serviceAt time.Time
	)
	if err := row.Scan(
		&order.ID, &order.VehicleID, &order.OilID, &order.OilName, &litres, &order.OilUnitPrice,
		&order.ServiceFee, &order.DiscountPercent, &order.DiscountAmount, &order.DiscountReason,
		&order.OdometerAtService, &serviceAt, &nextKm, &nextDate, &order.Notes,
		&totals.OilSubtotal, &totals.PartsSubtotal, &totals.ProductsSubtotal, &totals.GrossTotal,
		&totals.PercentDiscountValue, &totals.DiscountAmount, &totals.Total,
		&status, &order.VoidReason, &voidedAt, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.ServiceOrder{}, err
	}

	qty, err := domain.NewQuantity(litres, domain.LitresScale)
	if err != nil {
		return domain.ServiceOrder{}, fmt.Errorf("order %s oil litres: %w", order.ID, err)
	}
	order.OilLitres = qty
	order.Status = domain.OrderStatus(status)
	order.ServiceDate = asDate(serviceAt)
	order.Totals.ServiceFee = order.ServiceFee
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if nextKm.Valid {
		v := nextKm.Int64
		order.NextServiceOdometer = &v
	}
	if nextDate.Valid {
		v := asDate(nextDate.Time)
		order.NextServiceDate = &v
	}
	if voidedAt.Valid {
		v := voidedAt.Time.UTC()
		order.VoidedAt = &v
	}
	return order, nil
}

// orderArgs возвращает значения колонок orderColumns в том же порядке.
func orderArgs(order domain.ServiceOrder) []any {
	var (
		nextKm   sql.NullInt64
		nextDate sql.NullTime
		voidedAt sql.NullTime
	)
	if order.NextServiceOdometer != nil {
		nextKm = sql.NullInt64{Int64: *order.NextServiceOdometer, Valid: true}
	}
	if order.NextServiceDate != nil {
		nextDate = sql.NullTime{Time: *order.NextServiceDate, Valid: true}
	}
	if order.VoidedAt != nil {
		voidedAt = sql.NullTime{Time: *order.VoidedAt, Valid: true}
	}
	t := order.Totals
	return []any{
		order.ID, order.VehicleID, order.OilID, order.OilName, order.OilLitres.Decimal(), order.OilUnitPrice.Minor(),
		order.ServiceFee.Minor(), order.DiscountPercent, order.DiscountAmount.Minor(), order.DiscountReason,
		order.OdometerAtService, order.ServiceDate, nextKm, nextDate, order.Notes,
		t.OilSubtotal.Minor(), t.PartsSubtotal.Minor(), t.ProductsSubtotal.Minor(), t.GrossTotal.Minor(),
		t.PercentDiscountValue.Minor(), t.DiscountAmount.Minor(), t.Total.Minor(),
		string(order.Status), order.VoidReason, voidedAt, order.Version, order.CreatedAt, order.UpdatedAt,
	}
}

func scanCatalogItem(row rowScanner) (domain.CatalogItem, error) {
	var (
		item      domain.CatalogItem
		kind      string
		stock     decimal.Decimal
		threshold decimal.Decimal
	)
	if err := row.Scan(
		&item.ID, &kind, &item.Name, &item.Unit, &item.FractionalUnit, &item.UnitPrice, &item.UnitCost,
		&stock, &threshold, &item.Active, &item.UpdatedAt,
	); err != nil {
		return domain.CatalogItem{}, err
	}
	item.Kind = domain.CatalogKind(kind)
	item.UpdatedAt = item.UpdatedAt.UTC()

	scale := item.QuantityScale()
	var err error
	if item.StockQuantity, err = domain.NewQuantity(stock, scale); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("catalog item %s stock: %w", item.ID, err)
	}
	if item.ReorderThreshold, err = domain.NewQuantity(threshold, scale); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("catalog item %s threshold: %w", item.ID, err)
	}
	return item, nil
}

func scanVehicle(row rowScanner) (domain.Vehicle, error) {
	var vehicle domain.Vehicle
	if err := row.Scan(
		&vehicle.ID, &vehicle.ClientID, &vehicle.Plate, &vehicle.Model, &vehicle.Odometer, &vehicle.UpdatedAt,
	); err != nil {
		return domain.Vehicle{}, err
	}
	vehicle.UpdatedAt = vehicle.UpdatedAt.UTC()
	return vehicle, nil
}

// loadLines читает строки запчастей для набора заказов.
func loadLines(ctx context.Context, q querier, orderIDs []string) (map[string][]domain.PartLine, error) {
	result := make(map[string][]domain.PartLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, id, part_id, part_name, quantity, quantity_scale, unit_price_minor, line_total_minor
		FROM service_order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, classify("load order lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			line    domain.PartLine
			qty     decimal.Decimal
			scale   int32
		)
		if err := rows.Scan(&orderID, &line.ID, &line.PartID, &line.PartName, &qty, &scale,
			&line.UnitPrice, &line.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if line.Quantity, err = domain.NewQuantity(qty, scale); err != nil {
			return nil, fmt.Errorf("order line %s quantity: %w", line.ID, err)
		}
		result[orderID] = append(result[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate order lines", err)
	}
	return result, nil
}

func writeLines(ctx context.Context, q querier, order domain.ServiceOrder) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM service_order_lines WHERE order_id = $1`, order.ID); err != nil {
		return classify("delete order lines", err)
	}
	for i, line := range order.Lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO service_order_lines (
				id, order_id, position, part_id, part_name, quantity, quantity_scale, unit_price_minor, line_total_minor
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			line.ID, order.ID, i, line.PartID, line.PartName, line.Quantity.Decimal(), line.Quantity.Scale(),
			line.UnitPrice.Minor(), line.LineTotal.Minor(),
		); err != nil {
			return classify("insert order line", err)
		}
	}
	return nil
}

// asDate отбрасывает часовой пояс драйвера у значения колонки DATE.
func asDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
