package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

// GetOrder возвращает зафиксированный заказ.
func (s *Store) GetOrder(_ context.Context, id string) (domain.ServiceOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.ServiceOrder{}, domain.NewNotFound(domain.EntityOrder, id)
	}
	return order.Clone(), nil
}

// ListOrders возвращает страницу заказов, новые сначала.
func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.ServiceOrder, 0, len(s.orders))
	for _, order := range s.orders {
		if !s.matches(order, filter) {
			continue
		}
		matched = append(matched, order)
	}
	sortNewestFirst(matched)

	page := domain.OrderPage{Total: len(matched)}
	if filter.Offset >= len(matched) {
		page.Orders = []domain.ServiceOrder{}
		return page, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	for _, order := range matched[filter.Offset:end] {
		page.Orders = append(page.Orders, order.Clone())
	}
	return page, nil
}

func (s *Store) matches(order domain.ServiceOrder, filter domain.OrderFilter) bool {
	if filter.VehicleID != "" && order.VehicleID != filter.VehicleID {
		return false
	}
	if filter.ClientID != "" && s.vehicles[order.VehicleID].ClientID != filter.ClientID {
		return false
	}
	if filter.Status != "" && order.Status != filter.Status {
		return false
	}
	return inRange(order.ServiceDate, filter.From, filter.To)
}

// LatestActiveByVehicle возвращает для каждого автомобиля последний действующий заказ.
func (s *Store) LatestActiveByVehicle(_ context.Context) ([]domain.VehicleLastService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]domain.ServiceOrder)
	for _, order := range s.orders {
		if order.IsVoided() {
			continue
		}
		current, ok := latest[order.VehicleID]
		if !ok || newer(order, current) {
			latest[order.VehicleID] = order
		}
	}

	result := make([]domain.VehicleLastService, 0, len(latest))
	for vehicleID, order := range latest {
		vehicle, ok := s.vehicles[vehicleID]
		if !ok {
			continue
		}
		result = append(result, domain.VehicleLastService{Vehicle: vehicle, Order: order.Clone()})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Vehicle.ID < result[j].Vehicle.ID
	})
	return result, nil
}

// SumOrders считает агрегаты по действующим заказам с датой обслуживания в [from, to].
func (s *Store) SumOrders(_ context.Context, from, to *time.Time) (domain.OrderSums, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := domain.OrderSums{LitresUsed: domain.ZeroQuantity(domain.LitresScale)}
	for _, order := range s.orders {
		if order.IsVoided() || !inRange(order.ServiceDate, from, to) {
			continue
		}
		sums.Count++
		sums.Revenue = sums.Revenue.Add(order.Totals.Total)
		sums.OilRevenue = sums.OilRevenue.Add(order.Totals.OilSubtotal)
		sums.PartsRevenue = sums.PartsRevenue.Add(order.Totals.PartsSubtotal)
		sums.ServiceRevenue = sums.ServiceRevenue.Add(order.Totals.ServiceFee)
		sums.LitresUsed = sums.LitresUsed.Add(order.OilLitres)
	}
	return sums, nil
}

// GetCatalogItem возвращает позицию каталога с текущим остатком.
func (s *Store) GetCatalogItem(_ context.Context, id string) (domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.catalog[id]
	if !ok {
		return domain.CatalogItem{}, domain.NewNotFound(domain.EntityCatalogItem, id)
	}
	return item, nil
}

// ListAdjustments возвращает журнал движений позиции, новые сначала.
func (s *Store) ListAdjustments(_ context.Context, itemID string, limit int) ([]domain.StockAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.catalog[itemID]; !ok {
		return nil, domain.NewNotFound(domain.EntityCatalogItem, itemID)
	}

	history := s.adjustments[itemID]
	result := make([]domain.StockAdjustment, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		result = append(result, history[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// TimelineReader возвращает чтение истории заказов.
func (s *Store) TimelineReader() domain.TimelineReader {
	return timelineReader{s}
}

type timelineReader struct{ s *Store }

// List возвращает события заказа в хронологическом порядке.
func (r timelineReader) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	events := r.s.timeline[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Occurred.Before(result[j].Occurred)
	})
	return result, nil
}

func inRange(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}

func newer(a, b domain.ServiceOrder) bool {
	if !a.ServiceDate.Equal(b.ServiceDate) {
		return a.ServiceDate.After(b.ServiceDate)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func sortNewestFirst(orders []domain.ServiceOrder) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].ServiceDate.Equal(orders[j].ServiceDate) {
			return orders[i].ServiceDate.After(orders[j].ServiceDate)
		}
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

var (
	_ domain.OrderQueries   = (*Store)(nil)
	_ domain.StockQueries   = (*Store)(nil)
	_ domain.TimelineReader = timelineReader{}
)
