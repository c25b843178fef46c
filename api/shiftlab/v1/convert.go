package shiftlabv1

import (
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/lifecycle"
)

// parseDate разбирает YYYY-MM-DD. Пустая строка даёт nil.
func parseDate(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseDateFilter разбирает дату фильтра как календарный день, в котором хранятся даты заказов.
func ParseDateFilter(field, raw string) (*time.Time, error) {
	t, err := parseDate(raw, time.UTC)
	if err != nil {
		return nil, domain.NewValidationError(field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

// ToLifecycle переводит входные данные заказа в команду контроллера.
// Даты интерпретируются в часовом поясе мастерской loc.
func (in OrderInput) ToLifecycle(loc *time.Location) (lifecycle.OrderInput, error) {
	problems := &domain.ValidationError{}

	out := lifecycle.OrderInput{
		VehicleID:           in.VehicleID,
		OilID:               in.OilID,
		OilLitres:           in.OilLitres,
		ServiceFee:          in.ServiceFee,
		DiscountPercent:     in.DiscountPercent,
		DiscountAmount:      in.DiscountAmount,
		DiscountReason:      in.DiscountReason,
		OdometerAtService:   in.OdometerAtService,
		NextServiceOdometer: in.NextServiceOdometer,
		Notes:               in.Notes,
	}
	for _, part := range in.Parts {
		out.Parts = append(out.Parts, lifecycle.PartInput{PartID: part.PartID, Quantity: part.Quantity})
	}

	serviceDate, err := parseDate(in.ServiceDate, loc)
	if err != nil {
		problems.Add("service_date", "must be a date in YYYY-MM-DD format")
	} else if serviceDate != nil {
		out.ServiceDate = *serviceDate
	}
	nextDate, err := parseDate(in.NextServiceDate, loc)
	if err != nil {
		problems.Add("next_service_date", "must be a date in YYYY-MM-DD format")
	} else {
		out.NextServiceDate = nextDate
	}

	return out, problems.OrNil()
}

// ToQuery переводит фильтр списка в запрос контроллера.
func (r *ListOrdersRequest) ToQuery() (lifecycle.ListQuery, error) {
	problems := &domain.ValidationError{}
	query := lifecycle.ListQuery{
		VehicleID: r.VehicleID,
		ClientID:  r.ClientID,
		Status:    domain.OrderStatus(r.Status),
		Offset:    int(r.Offset),
		Limit:     int(r.Limit),
	}
	var err error
	if query.From, err = ParseDateFilter("from", r.From); err != nil {
		problems.Add("from", "must be a date in YYYY-MM-DD format")
	}
	if query.To, err = ParseDateFilter("to", r.To); err != nil {
		problems.Add("to", "must be a date in YYYY-MM-DD format")
	}
	return query, problems.OrNil()
}

// OrderFromDomain строит представление заказа.
func OrderFromDomain(order domain.ServiceOrder) *Order {
	lines := make([]OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLine{
			ID:        line.ID,
			PartID:    line.PartID,
			PartName:  line.PartName,
			Quantity:  line.Quantity.String(),
			UnitPrice: line.UnitPrice.String(),
			LineTotal: line.LineTotal.String(),
		})
	}

	out := &Order{
		ID:                  order.ID,
		VehicleID:           order.VehicleID,
		OilID:               order.OilID,
		OilName:             order.OilName,
		OilLitres:           order.OilLitres.String(),
		OilUnitPrice:        order.OilUnitPrice.String(),
		ServiceFee:          order.ServiceFee.String(),
		DiscountPercent:     order.DiscountPercent.String(),
		DiscountAmount:      order.DiscountAmount.String(),
		DiscountReason:      order.DiscountReason,
		OdometerAtService:   order.OdometerAtService,
		ServiceDate:         formatDate(order.ServiceDate),
		NextServiceOdometer: order.NextServiceOdometer,
		NextServiceDate:     formatDatePtr(order.NextServiceDate),
		Notes:               order.Notes,
		Lines:               lines,
		Totals: Totals{
			OilSubtotal:          order.Totals.OilSubtotal.String(),
			PartsSubtotal:        order.Totals.PartsSubtotal.String(),
			ProductsSubtotal:     order.Totals.ProductsSubtotal.String(),
			ServiceFee:           order.Totals.ServiceFee.String(),
			GrossTotal:           order.Totals.GrossTotal.String(),
			PercentDiscountValue: order.Totals.PercentDiscountValue.String(),
			DiscountAmount:       order.Totals.DiscountAmount.String(),
			Total:                order.Totals.Total.String(),
		},
		Status:     string(order.Status),
		VoidReason: order.VoidReason,
		VoidedAt:   order.VoidedAt,
		Version:    order.Version,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
	return out
}

// OrdersFromDomain строит список представлений.
func OrdersFromDomain(orders []domain.ServiceOrder) []*Order {
	out := make([]*Order, 0, len(orders))
	for _, order := range orders {
		out = append(out, OrderFromDomain(order))
	}
	return out
}

// TimelineFromDomain строит историю заказа.
func TimelineFromDomain(events []domain.TimelineEvent) []TimelineEvent {
	out := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		out = append(out, TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			Version:  event.Version,
			Total:    event.Total.String(),
			Occurred: event.Occurred,
		})
	}
	return out
}

// AlertsFromDomain строит список напоминаний.
func AlertsFromDomain(alerts []lifecycle.ServiceAlert) []*ServiceAlert {
	out := make([]*ServiceAlert, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, &ServiceAlert{
			VehicleID:           alert.VehicleID,
			ClientID:            alert.ClientID,
			Plate:               alert.Plate,
			Model:               alert.Model,
			OrderID:             alert.OrderID,
			LastServiceDate:     formatDate(alert.LastServiceDate),
			NextServiceDate:     formatDatePtr(alert.NextServiceDate),
			NextServiceOdometer: alert.NextServiceOdometer,
			CurrentOdometer:     alert.CurrentOdometer,
			DaysRemaining:       alert.DaysRemaining,
			KmRemaining:         alert.KmRemaining,
			Urgent:              alert.Urgent,
		})
	}
	return out
}

// StatisticsFromDomain строит сводку.
func StatisticsFromDomain(stats lifecycle.Statistics) *Statistics {
	return &Statistics{
		From:           formatDatePtr(stats.From),
		To:             formatDatePtr(stats.To),
		OrderCount:     stats.OrderCount,
		Revenue:        stats.Revenue.String(),
		OilRevenue:     stats.OilRevenue.String(),
		PartsRevenue:   stats.PartsRevenue.String(),
		ServiceRevenue: stats.ServiceRevenue.String(),
		LitresUsed:     stats.LitresUsed.String(),
		AverageTicket:  stats.AverageTicket.String(),
	}
}

// CatalogItemFromDomain строит представление позиции склада.
func CatalogItemFromDomain(item domain.CatalogItem) *CatalogItem {
	return &CatalogItem{
		ID:               item.ID,
		Kind:             string(item.Kind),
		Name:             item.Name,
		Unit:             item.Unit,
		UnitPrice:        item.UnitPrice.String(),
		StockQuantity:    item.StockQuantity.String(),
		ReorderThreshold: item.ReorderThreshold.String(),
		LowStock:         item.LowStock(),
		Active:           item.Active,
	}
}

// AdjustmentFromDomain строит запись журнала.
func AdjustmentFromDomain(adjustment domain.StockAdjustment) *StockAdjustment {
	return &StockAdjustment{
		ID:       adjustment.ID,
		ItemID:   adjustment.ItemID,
		Delta:    adjustment.Delta.String(),
		Balance:  adjustment.Balance.String(),
		Reason:   string(adjustment.Reason),
		OrderID:  adjustment.OrderID,
		Note:     adjustment.Note,
		Occurred: adjustment.Occurred,
	}
}

// AdjustmentsFromDomain строит журнал движений.
func AdjustmentsFromDomain(adjustments []domain.StockAdjustment) []*StockAdjustment {
	out := make([]*StockAdjustment, 0, len(adjustments))
	for _, adjustment := range adjustments {
		out = append(out, AdjustmentFromDomain(adjustment))
	}
	return out
}
