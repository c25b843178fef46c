package shiftlabv1

import (
	"time"

	"github.com/shopspring/decimal"
)

// Даты в API передаются как YYYY-MM-DD в часовом поясе мастерской,
// денежные суммы и количества как десятичные строки.

// PartInput — запчасть в заказе.
type PartInput struct {
	PartID   string          `json:"part_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderInput — содержимое заказа для создания и редактирования.
type OrderInput struct {
	VehicleID           string          `json:"vehicle_id"`
	OilID               string          `json:"oil_id"`
	OilLitres           decimal.Decimal `json:"oil_litres"`
	Parts               []PartInput     `json:"parts,omitempty"`
	ServiceFee          decimal.Decimal `json:"service_fee"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	DiscountReason      string          `json:"discount_reason,omitempty"`
	OdometerAtService   int64           `json:"odometer_at_service"`
	ServiceDate         string          `json:"service_date"`
	NextServiceOdometer *int64          `json:"next_service_odometer,omitempty"`
	NextServiceDate     string          `json:"next_service_date,omitempty"`
	Notes               string          `json:"notes,omitempty"`
}

// OrderLine — позиция запчасти с зафиксированной ценой.
type OrderLine struct {
	ID        string `json:"id"`
	PartID    string `json:"part_id"`
	PartName  string `json:"part_name"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

// Totals — расчёт стоимости заказа.
type Totals struct {
	OilSubtotal          string `json:"oil_subtotal"`
	PartsSubtotal        string `json:"parts_subtotal"`
	ProductsSubtotal     string `json:"products_subtotal"`
	ServiceFee           string `json:"service_fee"`
	GrossTotal           string `json:"gross_total"`
	PercentDiscountValue string `json:"percent_discount_value"`
	DiscountAmount       string `json:"discount_amount"`
	Total                string `json:"total"`
}

// Order — сервисный заказ.
type Order struct {
	ID                  string      `json:"id"`
	VehicleID           string      `json:"vehicle_id"`
	OilID               string      `json:"oil_id"`
	OilName             string      `json:"oil_name"`
	OilLitres           string      `json:"oil_litres"`
	OilUnitPrice        string      `json:"oil_unit_price"`
	ServiceFee          string      `json:"service_fee"`
	DiscountPercent     string      `json:"discount_percent"`
	DiscountAmount      string      `json:"discount_amount"`
	DiscountReason      string      `json:"discount_reason,omitempty"`
	OdometerAtService   int64       `json:"odometer_at_service"`
	ServiceDate         string      `json:"service_date"`
	NextServiceOdometer *int64      `json:"next_service_odometer,omitempty"`
	NextServiceDate     string      `json:"next_service_date,omitempty"`
	Notes               string      `json:"notes,omitempty"`
	Lines               []OrderLine `json:"lines"`
	Totals              Totals      `json:"totals"`
	Status              string      `json:"status"`
	VoidReason          string      `json:"void_reason,omitempty"`
	VoidedAt            *time.Time  `json:"voided_at,omitempty"`
	Version             int64       `json:"version"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// TimelineEvent — событие истории заказа.
type TimelineEvent struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Version  int64     `json:"version"`
	Total    string    `json:"total"`
	Occurred time.Time `json:"occurred"`
}

// ServiceAlert — автомобиль, которому скоро нужна замена масла.
type ServiceAlert struct {
	VehicleID           string `json:"vehicle_id"`
	ClientID            string `json:"client_id,omitempty"`
	Plate               string `json:"plate,omitempty"`
	Model               string `json:"model,omitempty"`
	OrderID             string `json:"order_id"`
	LastServiceDate     string `json:"last_service_date"`
	NextServiceDate     string `json:"next_service_date,omitempty"`
	NextServiceOdometer *int64 `json:"next_service_odometer,omitempty"`
	CurrentOdometer     int64  `json:"current_odometer"`
	DaysRemaining       *int   `json:"days_remaining,omitempty"`
	KmRemaining         *int64 `json:"km_remaining,omitempty"`
	Urgent              bool   `json:"urgent"`
}

// Statistics — сводка по действующим заказам за период.
type Statistics struct {
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	OrderCount     int64  `json:"order_count"`
	Revenue        string `json:"revenue"`
	OilRevenue     string `json:"oil_revenue"`
	PartsRevenue   string `json:"parts_revenue"`
	ServiceRevenue string `json:"service_revenue"`
	LitresUsed     string `json:"litres_used"`
	AverageTicket  string `json:"average_ticket"`
}

// CatalogItem — позиция склада.
type CatalogItem struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	Name             string `json:"name"`
	Unit             string `json:"unit,omitempty"`
	UnitPrice        string `json:"unit_price"`
	StockQuantity    string `json:"stock_quantity"`
	ReorderThreshold string `json:"reorder_threshold"`
	LowStock         bool   `json:"low_stock"`
	Active           bool   `json:"active"`
}

// StockAdjustment — запись складского журнала.
type StockAdjustment struct {
	ID       string    `json:"id"`
	ItemID   string    `json:"item_id"`
	Delta    string    `json:"delta"`
	Balance  string    `json:"balance"`
	Reason   string    `json:"reason"`
	OrderID  string    `json:"order_id,omitempty"`
	Note     string    `json:"note,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// CreateOrderRequest — запрос на создание заказа.
type CreateOrderRequest struct {
	Order OrderInput `json:"order"`
}

// CreateOrderResponse — созданный заказ.
type CreateOrderResponse struct {
	Order *Order `json:"order"`
}

// UpdateOrderRequest заменяет содержимое заказа версии ExpectedVersion.
type UpdateOrderRequest struct {
	OrderID         string     `json:"order_id"`
	ExpectedVersion int64      `json:"expected_version"`
	Order           OrderInput `json:"order"`
}

// UpdateOrderResponse — заказ после редактирования.
type UpdateOrderResponse struct {
	Order *Order `json:"order"`
}

// VoidOrderRequest аннулирует заказ версии ExpectedVersion.
type VoidOrderRequest struct {
	OrderID         string `json:"order_id"`
	ExpectedVersion int64  `json:"expected_version"`
	Reason          string `json:"reason,omitempty"`
}

// VoidOrderResponse — аннулированный заказ.
type VoidOrderResponse struct {
	Order *Order `json:"order"`
}

// GetOrderRequest — запрос заказа по ID.
type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

// GetOrderResponse — заказ и его история.
type GetOrderResponse struct {
	Order    *Order          `json:"order"`
	Timeline []TimelineEvent `json:"timeline"`
}

// ListOrdersRequest — фильтр списка заказов.
type ListOrdersRequest struct {
	VehicleID string `json:"vehicle_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Status    string `json:"status,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Offset    int32  `json:"offset,omitempty"`
	Limit     int32  `json:"limit,omitempty"`
}

// ListOrdersResponse — страница заказов.
type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
	Total  int32    `json:"total"`
}

// VehicleHistoryRequest — история обслуживания автомобиля.
type VehicleHistoryRequest struct {
	VehicleID string `json:"vehicle_id"`
}

// VehicleHistoryResponse — заказы автомобиля, новые первыми.
type VehicleHistoryResponse struct {
	Orders []*Order `json:"orders"`
}

// UpcomingServicesRequest задаёт окно напоминаний; нули означают значения по умолчанию.
type UpcomingServicesRequest struct {
	DaysAhead int32 `json:"days_ahead,omitempty"`
	KmAhead   int32 `json:"km_ahead,omitempty"`
}

// UpcomingServicesResponse — автомобили в окне напоминаний.
type UpcomingServicesResponse struct {
	Alerts []*ServiceAlert `json:"alerts"`
}

// StatisticsRequest задаёт период отчёта.
type StatisticsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// StatisticsResponse — сводка за период.
type StatisticsResponse struct {
	Statistics *Statistics `json:"statistics"`
}

// RestockRequest — приход товара на склад.
type RestockRequest struct {
	ItemID   string          `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Note     string          `json:"note,omitempty"`
}

// RestockResponse — запись журнала о приходе.
type RestockResponse struct {
	Adjustment *StockAdjustment `json:"adjustment"`
}

// StockMovementsRequest — журнал движения позиции.
type StockMovementsRequest struct {
	ItemID string `json:"item_id"`
	Limit  int32  `json:"limit,omitempty"`
}

// StockMovementsResponse — позиция и её последние движения.
type StockMovementsResponse struct {
	Item        *CatalogItem       `json:"item"`
	Adjustments []*StockAdjustment `json:"adjustments"`
}
