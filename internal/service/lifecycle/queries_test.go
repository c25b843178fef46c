package lifecycle_test

import (
	"time"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/lifecycle"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *LifecycleSuite) addVehicle(id, client string) {
	s.Require().NoError(s.store.UpsertVehicle(s.ctx, domain.Vehicle{
		ID: id, ClientID: client, Plate: "P-" + id, Model: "Gol", Odometer: 40000,
	}))
}

func (s *LifecycleSuite) reminderInput(vehicleID string, serviceDate time.Time, nextDate *time.Time, nextKm *int64) lifecycle.OrderInput {
	in := s.shopInput()
	in.VehicleID = vehicleID
	in.OilLitres = dec("1")
	in.Parts = nil
	in.ServiceDate = serviceDate
	in.NextServiceDate = nextDate
	in.NextServiceOdometer = nextKm
	return in
}

func (s *LifecycleSuite) TestUpcoming() {
	s.addVehicle("vehicle-2", "client-2")
	s.addVehicle("vehicle-3", "client-3")
	s.addVehicle("vehicle-4", "client-4")

	overdue := day(2026, 3, 5)
	s.create(s.reminderInput("vehicle-1", day(2026, 2, 1), &overdue, nil))

	soon := day(2026, 3, 25)
	s.create(s.reminderInput("vehicle-2", day(2026, 2, 20), &soon, nil))
	today := day(2026, 3, 10)
	later := s.create(s.reminderInput("vehicle-2", day(2026, 3, 9), &today, nil))
	_, err := s.service.Void(s.ctx, lifecycle.VoidOrderCommand{OrderID: later.ID, ExpectedVersion: 1})
	s.Require().NoError(err)

	km := int64(41500)
	s.create(s.reminderInput("vehicle-3", day(2026, 3, 1), nil, &km))

	far := day(2026, 6, 1)
	farKm := int64(46000)
	s.create(s.reminderInput("vehicle-4", day(2026, 3, 1), &far, &farKm))

	alerts, err := s.service.Upcoming(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(alerts, 3)

	s.Equal("vehicle-1", alerts[0].VehicleID)
	s.True(alerts[0].Urgent)
	s.Require().NotNil(alerts[0].DaysRemaining)
	s.Equal(-5, *alerts[0].DaysRemaining)

	s.Equal("vehicle-2", alerts[1].VehicleID)
	s.False(alerts[1].Urgent)
	s.Require().NotNil(alerts[1].DaysRemaining)
	s.Equal(15, *alerts[1].DaysRemaining)

	s.Equal("vehicle-3", alerts[2].VehicleID)
	s.Nil(alerts[2].DaysRemaining)
	s.Require().NotNil(alerts[2].KmRemaining)
	s.Equal(int64(500), *alerts[2].KmRemaining)
	s.Equal("client-3", alerts[2].ClientID)

	wide, err := s.service.Upcoming(s.ctx, 90, 0)
	s.Require().NoError(err)
	s.Len(wide, 4)

	_, err = s.service.Upcoming(s.ctx, 400, 0)
	s.True(domain.IsValidation(err))
	_, err = s.service.Upcoming(s.ctx, 0, 50)
	s.True(domain.IsValidation(err))
}

func (s *LifecycleSuite) TestStatistics() {
	s.create(s.shopInput())

	plain := s.shopInput()
	plain.OilLitres = dec("4")
	plain.Parts = nil
	plain.ServiceFee = dec("0")
	plain.DiscountPercent = dec("0")
	plain.ServiceDate = day(2026, 3, 1)
	s.create(plain)

	voided := s.shopInput()
	voided.OilLitres = dec("2")
	voided.Parts = nil
	order := s.create(voided)
	_, err := s.service.Void(s.ctx, lifecycle.VoidOrderCommand{OrderID: order.ID, ExpectedVersion: 1})
	s.Require().NoError(err)

	stats, err := s.service.Statistics(s.ctx, nil, nil)
	s.Require().NoError(err)
	s.Equal(int64(2), stats.OrderCount)
	s.Equal(domain.Money(38250), stats.Revenue)
	s.Equal(domain.Money(31500), stats.OilRevenue)
	s.Equal(domain.Money(4000), stats.PartsRevenue)
	s.Equal(domain.Money(5000), stats.ServiceRevenue)
	s.Equal("7.00", stats.LitresUsed.String())
	s.Equal(domain.Money(19125), stats.AverageTicket)

	from := day(2026, 3, 5)
	recent, err := s.service.Statistics(s.ctx, &from, nil)
	s.Require().NoError(err)
	s.Equal(int64(1), recent.OrderCount)
	s.Equal(domain.Money(20250), recent.AverageTicket)

	to := day(2026, 2, 1)
	empty, err := s.service.Statistics(s.ctx, nil, &to)
	s.Require().NoError(err)
	s.Zero(empty.OrderCount)
	s.Zero(empty.AverageTicket)

	_, err = s.service.Statistics(s.ctx, &from, &to)
	s.True(domain.IsValidation(err))
}

func (s *LifecycleSuite) TestList() {
	s.addVehicle("vehicle-2", "client-2")

	first := s.create(s.shopInput())
	other := s.shopInput()
	other.VehicleID = "vehicle-2"
	other.Parts = nil
	other.OilLitres = dec("1")
	other.ServiceDate = day(2026, 3, 2)
	second := s.create(other)
	_, err := s.service.Void(s.ctx, lifecycle.VoidOrderCommand{OrderID: second.ID, ExpectedVersion: 1})
	s.Require().NoError(err)

	page, err := s.service.List(s.ctx, lifecycle.ListQuery{})
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Require().Len(page.Orders, 2)
	s.Equal(first.ID, page.Orders[0].ID)

	page, err = s.service.List(s.ctx, lifecycle.ListQuery{Status: domain.OrderStatusVoided})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Equal(second.ID, page.Orders[0].ID)

	page, err = s.service.List(s.ctx, lifecycle.ListQuery{ClientID: "client-1"})
	s.Require().NoError(err)
	s.Equal(1, page.Total)

	page, err = s.service.List(s.ctx, lifecycle.ListQuery{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Require().Len(page.Orders, 1)
	s.Equal(second.ID, page.Orders[0].ID)

	from := day(2026, 3, 5)
	to := day(2026, 3, 1)
	for _, q := range []lifecycle.ListQuery{
		{Limit: 101},
		{Offset: -1},
		{Status: "proposed"},
		{From: &from, To: &to},
	} {
		_, err := s.service.List(s.ctx, q)
		s.True(domain.IsValidation(err), "query %+v", q)
	}

	history, err := s.service.History(s.ctx, "vehicle-2")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(domain.OrderStatusVoided, history[0].Status)
}

func (s *LifecycleSuite) TestStockMovementsAndTimeline() {
	order := s.create(s.shopInput())
	_, err := s.service.Void(s.ctx, lifecycle.VoidOrderCommand{OrderID: order.ID, ExpectedVersion: 1})
	s.Require().NoError(err)

	movements, err := s.service.StockMovements(s.ctx, "oil-1", 0)
	s.Require().NoError(err)
	s.Require().Len(movements, 2)
	s.Equal(domain.AdjustmentOrderReverse, movements[0].Reason)
	s.Equal("10.00", movements[0].Balance.String())
	s.Equal(domain.AdjustmentOrderCreate, movements[1].Reason)
	s.Equal("-3.00", movements[1].Delta.String())
	s.Equal(order.ID, movements[1].OrderID)

	limited, err := s.service.StockMovements(s.ctx, "oil-1", 1)
	s.Require().NoError(err)
	s.Len(limited, 1)

	_, err = s.service.StockMovements(s.ctx, "oil-1", 501)
	s.True(domain.IsValidation(err))
	_, err = s.service.StockMovements(s.ctx, "ghost", 0)
	s.True(domain.IsNotFound(err))

	item, err := s.service.CatalogItem(s.ctx, "part-a")
	s.Require().NoError(err)
	s.Equal("5", item.StockQuantity.String())

	events, err := s.service.Timeline(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(int64(1), events[0].Version)
	s.Equal(int64(2), events[1].Version)

	_, err = s.service.Timeline(s.ctx, "ghost")
	s.True(domain.IsNotFound(err))
}
