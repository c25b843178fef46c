package lifecycle

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

const (
	defaultPageLimit     = 20
	maxPageLimit         = 100
	defaultMovementLimit = 50
	maxMovementLimit     = 500

	// DefaultAlertDays и DefaultAlertKm задают окно напоминаний по умолчанию.
	DefaultAlertDays = 30
	DefaultAlertKm   = 1000
)

// ListQuery задаёт фильтр списка заказов.
type ListQuery struct {
	VehicleID string
	ClientID  string
	Status    domain.OrderStatus
	From      *time.Time
	To        *time.Time
	Offset    int
	Limit     int
}

// ServiceAlert — автомобиль, которому скоро нужна следующая замена масла.
type ServiceAlert struct {
	VehicleID           string
	ClientID            string
	Plate               string
	Model               string
	OrderID             string
	LastServiceDate     time.Time
	NextServiceDate     *time.Time
	NextServiceOdometer *int64
	CurrentOdometer     int64
	DaysRemaining       *int
	KmRemaining         *int64
	Urgent              bool
}

// Statistics — сводка по действующим заказам за период.
type Statistics struct {
	From           *time.Time
	To             *time.Time
	OrderCount     int64
	Revenue        domain.Money
	OilRevenue     domain.Money
	PartsRevenue   domain.Money
	ServiceRevenue domain.Money
	LitresUsed     domain.Quantity
	AverageTicket  domain.Money
}

// Get возвращает заказ по ID.
func (s *Service) Get(ctx context.Context, id string) (domain.ServiceOrder, error) {
	if id == "" {
		return domain.ServiceOrder{}, domain.NewValidationError("order_id", "is required")
	}
	return s.store.GetOrder(ctx, id)
}

// List возвращает страницу заказов, новые сначала.
func (s *Service) List(ctx context.Context, q ListQuery) (domain.OrderPage, error) {
	problems := &domain.ValidationError{}
	if q.Limit == 0 {
		q.Limit = defaultPageLimit
	}
	if q.Limit < 1 || q.Limit > maxPageLimit {
		problems.Add("limit", "must be between 1 and 100")
	}
	if q.Offset < 0 {
		problems.Add("offset", "must be non-negative")
	}
	if q.Status != "" && q.Status != domain.OrderStatusActive && q.Status != domain.OrderStatusVoided {
		problems.Add("status", "must be active or voided")
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		problems.Add("from", "must not be after to")
	}
	if err := problems.OrNil(); err != nil {
		return domain.OrderPage{}, err
	}

	return s.store.ListOrders(ctx, domain.OrderFilter{
		VehicleID: q.VehicleID,
		ClientID:  q.ClientID,
		Status:    q.Status,
		From:      q.From,
		To:        q.To,
		Offset:    q.Offset,
		Limit:     q.Limit,
	})
}

// History возвращает все заказы автомобиля, включая аннулированные, новые сначала.
func (s *Service) History(ctx context.Context, vehicleID string) ([]domain.ServiceOrder, error) {
	if vehicleID == "" {
		return nil, domain.NewValidationError("vehicle_id", "is required")
	}
	page, err := s.store.ListOrders(ctx, domain.OrderFilter{VehicleID: vehicleID})
	if err != nil {
		return nil, err
	}
	return page.Orders, nil
}

// Upcoming возвращает автомобили, у которых следующая замена наступает в пределах
// daysAhead дней или kmAhead километров. Нулевые значения означают окно по умолчанию.
func (s *Service) Upcoming(ctx context.Context, daysAhead, kmAhead int) ([]ServiceAlert, error) {
	if daysAhead == 0 {
		daysAhead = DefaultAlertDays
	}
	if kmAhead == 0 {
		kmAhead = DefaultAlertKm
	}
	problems := &domain.ValidationError{}
	if daysAhead < 1 || daysAhead > 365 {
		problems.Add("days_ahead", "must be between 1 and 365")
	}
	if kmAhead < 100 || kmAhead > 10000 {
		problems.Add("km_ahead", "must be between 100 and 10000")
	}
	if err := problems.OrNil(); err != nil {
		return nil, err
	}

	latest, err := s.store.LatestActiveByVehicle(ctx)
	if err != nil {
		return nil, err
	}

	today := dateOf(s.clock(), s.location)
	alerts := make([]ServiceAlert, 0)
	for _, last := range latest {
		alert, due := buildAlert(last, today, daysAhead, int64(kmAhead))
		if due {
			alerts = append(alerts, alert)
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Urgent != b.Urgent {
			return a.Urgent
		}
		if (a.DaysRemaining == nil) != (b.DaysRemaining == nil) {
			return a.DaysRemaining != nil
		}
		if a.DaysRemaining != nil && *a.DaysRemaining != *b.DaysRemaining {
			return *a.DaysRemaining < *b.DaysRemaining
		}
		return a.VehicleID < b.VehicleID
	})
	return alerts, nil
}

func buildAlert(last domain.VehicleLastService, today time.Time, daysAhead int, kmAhead int64) (ServiceAlert, bool) {
	order := last.Order
	alert := ServiceAlert{
		VehicleID:           last.Vehicle.ID,
		ClientID:            last.Vehicle.ClientID,
		Plate:               last.Vehicle.Plate,
		Model:               last.Vehicle.Model,
		OrderID:             order.ID,
		LastServiceDate:     order.ServiceDate,
		NextServiceDate:     order.NextServiceDate,
		NextServiceOdometer: order.NextServiceOdometer,
		CurrentOdometer:     last.Vehicle.Odometer,
	}

	due := false
	if order.NextServiceDate != nil {
		days := int(order.NextServiceDate.Sub(today).Hours() / 24)
		alert.DaysRemaining = &days
		if days <= daysAhead {
			due = true
		}
		if days <= 0 {
			alert.Urgent = true
		}
	}
	if order.NextServiceOdometer != nil {
		km := *order.NextServiceOdometer - last.Vehicle.Odometer
		alert.KmRemaining = &km
		if km <= kmAhead {
			due = true
		}
		if km <= 0 {
			alert.Urgent = true
		}
	}
	return alert, due
}

// Statistics считает выручку и расход масла по действующим заказам за период.
func (s *Service) Statistics(ctx context.Context, from, to *time.Time) (Statistics, error) {
	if from != nil && to != nil && from.After(*to) {
		return Statistics{}, domain.NewValidationError("from", "must not be after to")
	}

	sums, err := s.store.SumOrders(ctx, from, to)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{
		From:           from,
		To:             to,
		OrderCount:     sums.Count,
		Revenue:        sums.Revenue,
		OilRevenue:     sums.OilRevenue,
		PartsRevenue:   sums.PartsRevenue,
		ServiceRevenue: sums.ServiceRevenue,
		LitresUsed:     sums.LitresUsed,
	}
	if sums.Count > 0 {
		count, err := domain.NewQuantity(decimal.NewFromInt(sums.Count), domain.UnitScale)
		if err != nil {
			return Statistics{}, err
		}
		if stats.AverageTicket, err = sums.Revenue.DivQuantity(count); err != nil {
			return Statistics{}, err
		}
	}
	return stats, nil
}

// StockMovements возвращает журнал движений позиции склада, новые сначала.
func (s *Service) StockMovements(ctx context.Context, itemID string, limit int) ([]domain.StockAdjustment, error) {
	if itemID == "" {
		return nil, domain.NewValidationError("item_id", "is required")
	}
	if limit == 0 {
		limit = defaultMovementLimit
	}
	if limit < 1 || limit > maxMovementLimit {
		return nil, domain.NewValidationError("limit", "must be between 1 and 500")
	}
	return s.store.ListAdjustments(ctx, itemID, limit)
}

// CatalogItem возвращает позицию склада с текущим остатком.
func (s *Service) CatalogItem(ctx context.Context, itemID string) (domain.CatalogItem, error) {
	if itemID == "" {
		return domain.CatalogItem{}, domain.NewValidationError("item_id", "is required")
	}
	return s.store.GetCatalogItem(ctx, itemID)
}

// Timeline возвращает историю заказа в хронологическом порядке.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.TimelineReader().List(ctx, orderID)
}
