package integration

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	shiftlabv1 "github.com/vladislavdragonenkov/shiftlab/api/shiftlab/v1"
	"github.com/vladislavdragonenkov/shiftlab/internal/app"
	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/shiftlab/internal/service/grpc"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/inventory"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/outbox"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/reminder"
	"github.com/vladislavdragonenkov/shiftlab/internal/storage/memory"
)

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.EventType)
	}
	return types
}

// OrderLifecycleTestSuite прогоняет заказы через gRPC API поверх in-memory хранилища.
type OrderLifecycleTestSuite struct {
	suite.Suite

	store     *memory.Store
	service   *lifecycle.Service
	client    shiftlabv1.ServiceOrderServiceClient
	conn      *grpc.ClientConn
	server    *grpc.Server
	publisher *recordingPublisher
	worker    *outbox.Worker
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")
	ctx := context.Background()

	s.store = memory.NewStore()
	_, err := app.ApplySeed(ctx, app.SeedFile{
		Vehicles: []app.SeedVehicle{
			{ID: "veh-1", ClientID: "client-1", Plate: "ABC-123", Odometer: 48000},
			{ID: "veh-2", ClientID: "client-2", Plate: "XYZ-789", Odometer: 12000},
		},
		Catalog: []app.SeedCatalogItem{
			{ID: "oil-5w30", Kind: "oil", Name: "5W-30 Synthetic", Unit: "L", FractionalUnit: true, UnitPrice: "180.00", Stock: "40", ReorderThreshold: "8"},
			{ID: "flt-101", Kind: "part", Name: "Oil filter", UnitPrice: "95.50", Stock: "12", ReorderThreshold: "3"},
		},
	}, s.store)
	s.Require().NoError(err)

	ledger := inventory.NewLedger(s.store, inventory.WithLogger(logger))
	s.service = lifecycle.NewService(s.store, ledger,
		lifecycle.WithLogger(logger),
		lifecycle.WithLocation(time.UTC),
	)

	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour, nil)
	orderService := grpcsvc.NewServiceOrderService(s.service,
		grpcsvc.WithLogger(logger),
		grpcsvc.WithIdempotency(guard),
	)
	s.server, _ = grpcsvc.NewServer(orderService, logger, prometheus.NewRegistry())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	go func() {
		_ = s.server.Serve(lis)
	}()

	s.conn, err = grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err)
	s.client = shiftlabv1.NewServiceOrderServiceClient(s.conn)

	s.publisher = &recordingPublisher{}
	s.worker = outbox.NewWorker(s.store.Outbox(), s.publisher, outbox.WithLogger(logger))
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.server != nil {
		s.server.Stop()
	}
}

func (s *OrderLifecycleTestSuite) withKey(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", key)
}

func (s *OrderLifecycleTestSuite) orderInput(litres string, parts ...shiftlabv1.PartInput) shiftlabv1.OrderInput {
	return shiftlabv1.OrderInput{
		VehicleID:         "veh-1",
		OilID:             "oil-5w30",
		OilLitres:         decimal.RequireFromString(litres),
		Parts:             parts,
		ServiceFee:        decimal.NewFromInt(150),
		OdometerAtService: 48500,
		ServiceDate:       time.Now().UTC().AddDate(0, 0, -1).Format(time.DateOnly),
	}
}

func (s *OrderLifecycleTestSuite) stockOf(itemID string) string {
	resp, err := s.client.StockMovements(context.Background(), &shiftlabv1.StockMovementsRequest{ItemID: itemID})
	s.Require().NoError(err)
	s.Require().NotNil(resp.Item)
	return resp.Item.StockQuantity
}

func (s *OrderLifecycleTestSuite) TestCreateUpdateVoidLifecycle() {
	ctx := context.Background()
	t := s.T()

	// 1. Создание списывает масло и фильтр.
	created, err := s.client.CreateOrder(s.withKey("create-1"), &shiftlabv1.CreateOrderRequest{
		Order: s.orderInput("4.5", shiftlabv1.PartInput{PartID: "flt-101", Quantity: decimal.NewFromInt(1)}),
	})
	require.NoError(t, err)
	order := created.Order
	require.NotEmpty(t, order.ID)
	require.Equal(t, "active", order.Status)
	require.Equal(t, int64(1), order.Version)
	require.Equal(t, "1055.50", order.Totals.Total) // 4.5 * 180.00 + 95.50 + 150
	require.Len(t, order.Lines, 1)
	require.Equal(t, "35.50", s.stockOf("oil-5w30"))
	require.Equal(t, "11", s.stockOf("flt-101"))

	// 2. Редактирование возвращает фильтр и пересчитывает масло.
	updated, err := s.client.UpdateOrder(ctx, &shiftlabv1.UpdateOrderRequest{
		OrderID:         order.ID,
		ExpectedVersion: order.Version,
		Order:           s.orderInput("5"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Order.Version)
	require.Equal(t, "1050.00", updated.Order.Totals.Total)
	require.Empty(t, updated.Order.Lines)
	require.Equal(t, "35.00", s.stockOf("oil-5w30"))
	require.Equal(t, "12", s.stockOf("flt-101"))

	// 3. Аннулирование возвращает всё на склад.
	voided, err := s.client.VoidOrder(ctx, &shiftlabv1.VoidOrderRequest{
		OrderID:         order.ID,
		ExpectedVersion: updated.Order.Version,
		Reason:          "customer left",
	})
	require.NoError(t, err)
	require.Equal(t, "voided", voided.Order.Status)
	require.Equal(t, "customer left", voided.Order.VoidReason)
	require.Equal(t, "40.00", s.stockOf("oil-5w30"))

	// 4. История заказа.
	got, err := s.client.GetOrder(ctx, &shiftlabv1.GetOrderRequest{OrderID: order.ID})
	require.NoError(t, err)
	types := make([]string, 0, len(got.Timeline))
	for _, event := range got.Timeline {
		types = append(types, event.Type)
	}
	require.Equal(t, []string{domain.TimelineOrderCreated, domain.TimelineOrderUpdated, domain.TimelineOrderVoided}, types)

	// 5. Повторная правка аннулированного заказа отклоняется.
	_, err = s.client.UpdateOrder(ctx, &shiftlabv1.UpdateOrderRequest{
		OrderID:         order.ID,
		ExpectedVersion: voided.Order.Version,
		Order:           s.orderInput("4"),
	})
	require.Error(t, err)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	// 6. Журнал склада: списание, корректировка и возврат.
	movements, err := s.client.StockMovements(ctx, &shiftlabv1.StockMovementsRequest{ItemID: "oil-5w30"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(movements.Adjustments), 3)
}

func (s *OrderLifecycleTestSuite) TestInsufficientStockLeavesNothingBehind() {
	t := s.T()

	_, err := s.client.CreateOrder(s.withKey("too-much"), &shiftlabv1.CreateOrderRequest{
		Order: s.orderInput("41"),
	})
	require.Error(t, err)
	st := status.Convert(err)
	require.Equal(t, codes.FailedPrecondition, st.Code())

	var subject string
	for _, detail := range st.Details() {
		if failure, ok := detail.(*errdetails.PreconditionFailure); ok && len(failure.Violations) > 0 {
			subject = failure.Violations[0].Subject
		}
	}
	require.Equal(t, "oil-5w30", subject)

	require.Equal(t, "40.00", s.stockOf("oil-5w30"))
	list, err := s.client.ListOrders(context.Background(), &shiftlabv1.ListOrdersRequest{})
	require.NoError(t, err)
	require.Zero(t, list.Total)

	stats, err := s.store.Outbox().Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func (s *OrderLifecycleTestSuite) TestIdempotentCreate() {
	t := s.T()
	req := &shiftlabv1.CreateOrderRequest{Order: s.orderInput("4")}

	first, err := s.client.CreateOrder(s.withKey("same-key"), req)
	require.NoError(t, err)
	second, err := s.client.CreateOrder(s.withKey("same-key"), req)
	require.NoError(t, err)
	require.Equal(t, first.Order.ID, second.Order.ID)
	require.Equal(t, "36.00", s.stockOf("oil-5w30"))

	other := &shiftlabv1.CreateOrderRequest{Order: s.orderInput("3")}
	_, err = s.client.CreateOrder(s.withKey("same-key"), other)
	require.Error(t, err)

	_, err = s.client.CreateOrder(context.Background(), req)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func (s *OrderLifecycleTestSuite) TestStaleVersionIsRejected() {
	t := s.T()

	created, err := s.client.CreateOrder(s.withKey("stale"), &shiftlabv1.CreateOrderRequest{Order: s.orderInput("4")})
	require.NoError(t, err)

	_, err = s.client.VoidOrder(context.Background(), &shiftlabv1.VoidOrderRequest{
		OrderID:         created.Order.ID,
		ExpectedVersion: created.Order.Version + 4,
	})
	require.Equal(t, codes.Aborted, status.Code(err))
	require.Equal(t, "36.00", s.stockOf("oil-5w30"))
}

func (s *OrderLifecycleTestSuite) TestOutboxPublishesOrderAndStockEvents() {
	t := s.T()
	ctx := context.Background()

	created, err := s.client.CreateOrder(s.withKey("outbox"), &shiftlabv1.CreateOrderRequest{
		Order: s.orderInput("4", shiftlabv1.PartInput{PartID: "flt-101", Quantity: decimal.NewFromInt(10)}),
	})
	require.NoError(t, err)
	_, err = s.client.VoidOrder(ctx, &shiftlabv1.VoidOrderRequest{OrderID: created.Order.ID, ExpectedVersion: 1})
	require.NoError(t, err)

	result := s.worker.ProcessOnce(ctx)
	require.Zero(t, result.Failed)
	require.Equal(t, len(s.publisher.eventTypes()), result.Sent)

	types := s.publisher.eventTypes()
	require.Contains(t, types, domain.EventOrderCreated)
	require.Contains(t, types, domain.EventOrderVoided)
	require.Contains(t, types, domain.EventStockLow)

	stats, err := s.store.Outbox().Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	again := s.worker.ProcessOnce(ctx)
	require.Zero(t, again.Sent)
}

func (s *OrderLifecycleTestSuite) TestReminderScanEnqueuesDueVehicles() {
	t := s.T()
	ctx := context.Background()

	in := s.orderInput("4")
	next := in.OdometerAtService + 200
	in.NextServiceOdometer = &next
	_, err := s.client.CreateOrder(s.withKey("reminder"), &shiftlabv1.CreateOrderRequest{Order: in})
	require.NoError(t, err)

	upcoming, err := s.client.UpcomingServices(ctx, &shiftlabv1.UpcomingServicesRequest{})
	require.NoError(t, err)
	require.Len(t, upcoming.Alerts, 1)
	require.Equal(t, "veh-1", upcoming.Alerts[0].VehicleID)

	scanner, err := reminder.NewScanner(s.service, s.store.Outbox(), reminder.WithLocation(time.UTC))
	require.NoError(t, err)

	first, err := scanner.ScanOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, reminder.ScanResult{Due: 1, Enqueued: 1}, first)

	second, err := scanner.ScanOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, second.Enqueued)

	s.worker.ProcessOnce(ctx)
	require.Contains(t, s.publisher.eventTypes(), domain.EventServiceReminderDue)
}
