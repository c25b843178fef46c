package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл сервисного заказа.
type OrderStatus string

const (
	// OrderStatusProposed существует только во время валидации и никогда не сохраняется.
	OrderStatusProposed OrderStatus = "proposed"
	// OrderStatusActive — заказ сохранён, склад списан.
	OrderStatusActive OrderStatus = "active"
	// OrderStatusVoided — заказ аннулирован, остатки возвращены, запись сохранена для истории.
	OrderStatusVoided OrderStatus = "voided"
)

var (
	errOrderVehicleRequired = errors.New("vehicle_id is required")
	errOrderOilRequired     = errors.New("oil_id is required")
	errOrderLitresInvalid   = errors.New("oil litres must be greater than zero")
	errOrderLineQtyInvalid  = errors.New("part line quantity must be greater than zero")
	errOrderLinePart        = errors.New("part line must reference a part")
	errOrderTotalNegative   = errors.New("order total must be non-negative")
	errOrderStatusPersisted = errors.New("only active or voided orders can be persisted")
)

// PartLine — позиция запчасти в заказе с зафиксированной ценой.
type PartLine struct {
	ID       string
	PartID   string
	PartName string
	Quantity Quantity
	// UnitPrice фиксируется при первом появлении позиции в заказе и дальше не меняется.
	UnitPrice Money
	LineTotal Money
}

// Totals — результат расчёта стоимости заказа.
type Totals struct {
	OilSubtotal          Money
	PartsSubtotal        Money
	ProductsSubtotal     Money
	ServiceFee           Money
	GrossTotal           Money
	PercentDiscountValue Money
	DiscountAmount       Money
	Total                Money
}

// ServiceOrder — заказ на замену масла.
type ServiceOrder struct {
	ID        string
	VehicleID string
	OilID     string
	OilName   string
	OilLitres Quantity
	// OilUnitPrice — цена литра на момент оформления.
	OilUnitPrice Money

	ServiceFee      Money
	DiscountPercent decimal.Decimal
	DiscountAmount  Money
	DiscountReason  string

	OdometerAtService   int64
	ServiceDate         time.Time
	NextServiceOdometer *int64
	NextServiceDate     *time.Time
	Notes               string

	Lines  []PartLine
	Totals Totals

	Status     OrderStatus
	VoidReason string
	VoidedAt   *time.Time
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StockLines возвращает всё, что заказ потребляет со склада: масло и запчасти.
func (o *ServiceOrder) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Lines)+1)
	if o.OilID != "" {
		lines = append(lines, StockLine{ItemID: o.OilID, Quantity: o.OilLitres})
	}
	for _, line := range o.Lines {
		lines = append(lines, StockLine{ItemID: line.PartID, Quantity: line.Quantity})
	}
	return lines
}

// IsVoided сообщает, что заказ аннулирован.
func (o *ServiceOrder) IsVoided() bool {
	return o.Status == OrderStatusVoided
}

// Clone возвращает копию заказа без общих срезов и указателей.
func (o ServiceOrder) Clone() ServiceOrder {
	dst := o
	dst.Lines = append([]PartLine(nil), o.Lines...)
	if o.NextServiceOdometer != nil {
		v := *o.NextServiceOdometer
		dst.NextServiceOdometer = &v
	}
	if o.NextServiceDate != nil {
		v := *o.NextServiceDate
		dst.NextServiceDate = &v
	}
	if o.VoidedAt != nil {
		v := *o.VoidedAt
		dst.VoidedAt = &v
	}
	return dst
}

// ValidateInvariants проверяет инварианты сохраняемого заказа и возвращает список замечаний.
func (o *ServiceOrder) ValidateInvariants() []error {
	var errs []error

	if o.VehicleID == "" {
		errs = append(errs, errOrderVehicleRequired)
	}
	if o.OilID == "" {
		errs = append(errs, errOrderOilRequired)
	}
	if !o.OilLitres.IsPositive() {
		errs = append(errs, errOrderLitresInvalid)
	}
	for _, line := range o.Lines {
		if line.PartID == "" {
			errs = append(errs, errOrderLinePart)
		}
		if !line.Quantity.IsPositive() {
			errs = append(errs, errOrderLineQtyInvalid)
		}
	}
	if o.Totals.Total < 0 {
		errs = append(errs, errOrderTotalNegative)
	}
	if o.Status != OrderStatusActive && o.Status != OrderStatusVoided {
		errs = append(errs, errOrderStatusPersisted)
	}

	return errs
}

// CheckInvariants объединяет замечания ValidateInvariants в одну ошибку ErrOrderInvariant.
func (o *ServiceOrder) CheckInvariants() error {
	errs := o.ValidateInvariants()
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrOrderInvariant, errors.Join(errs...))
}
