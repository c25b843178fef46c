// Package grpcsvc реализует gRPC API сервисных заказов поверх контроллера жизненного цикла.
package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"

	shiftlabv1 "github.com/vladislavdragonenkov/shiftlab/api/shiftlab/v1"
	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/lifecycle"
)

const idempotencyKeyHeader = "idempotency-key"

// Controller — операции жизненного цикла заказа, которые обслуживает API.
type Controller interface {
	Create(ctx context.Context, cmd lifecycle.CreateOrderCommand) (domain.ServiceOrder, error)
	Update(ctx context.Context, cmd lifecycle.UpdateOrderCommand) (domain.ServiceOrder, error)
	Void(ctx context.Context, cmd lifecycle.VoidOrderCommand) (domain.ServiceOrder, error)
	Restock(ctx context.Context, itemID string, quantity decimal.Decimal, note string) (domain.StockAdjustment, error)
	Get(ctx context.Context, id string) (domain.ServiceOrder, error)
	List(ctx context.Context, q lifecycle.ListQuery) (domain.OrderPage, error)
	History(ctx context.Context, vehicleID string) ([]domain.ServiceOrder, error)
	Upcoming(ctx context.Context, daysAhead, kmAhead int) ([]lifecycle.ServiceAlert, error)
	Statistics(ctx context.Context, from, to *time.Time) (lifecycle.Statistics, error)
	StockMovements(ctx context.Context, itemID string, limit int) ([]domain.StockAdjustment, error)
	CatalogItem(ctx context.Context, itemID string) (domain.CatalogItem, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	Location() *time.Location
}

// Options задаёт зависимости сервиса.
type Options struct {
	Logger *log.Entry
	Guard  *idempotency.Guard
}

// Option настраивает ServiceOrderService.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithIdempotency включает обязательный idempotency-key для CreateOrder.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(o *Options) { o.Guard = guard }
}

// ServiceOrderService реализует shiftlab.v1.ServiceOrderService.
type ServiceOrderService struct {
	shiftlabv1.UnimplementedServiceOrderServiceServer

	orders Controller
	guard  *idempotency.Guard
	logger *log.Entry
}

// NewServiceOrderService конструирует сервис с зависимостями.
func NewServiceOrderService(orders Controller, options ...Option) *ServiceOrderService {
	var opts Options
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "grpc-service-orders")
	}
	return &ServiceOrderService{orders: orders, guard: opts.Guard, logger: logger}
}

// CreateOrder создаёт заказ. При включённой идемпотентности повтор с тем же ключом
// возвращает сохранённый ответ.
func (s *ServiceOrderService) CreateOrder(ctx context.Context, req *shiftlabv1.CreateOrderRequest) (*shiftlabv1.CreateOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if !s.guard.Enabled() {
		return s.createOrder(ctx, req, "")
	}

	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode request")
	}
	requestHash := idempotency.RequestHash(shiftlabv1.ServiceOrderService_CreateOrder_FullMethodName, payload)

	record, fresh, err := s.guard.Begin(ctx, key, requestHash)
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(err, idempotency.ErrInProgress):
		return nil, status.Error(codes.Aborted, err.Error())
	case err != nil:
		return nil, s.statusError(err, "CreateOrder", "")
	}
	if !fresh {
		if resp, replayed, replayErr := s.replayCreate(record); replayed {
			return resp, replayErr
		}
	}

	resp, runErr := s.createOrder(ctx, req, idempotency.DerivedID(key, requestHash))
	s.rememberCreate(context.WithoutCancel(ctx), key, resp, runErr)
	return resp, runErr
}

func (s *ServiceOrderService) createOrder(ctx context.Context, req *shiftlabv1.CreateOrderRequest, orderID string) (*shiftlabv1.CreateOrderResponse, error) {
	input, err := req.Order.ToLifecycle(s.orders.Location())
	if err != nil {
		return nil, s.statusError(err, "CreateOrder", "")
	}

	order, err := s.orders.Create(ctx, lifecycle.CreateOrderCommand{OrderID: orderID, Input: input})
	if errors.Is(err, domain.ErrDuplicate) && orderID != "" {
		// Предыдущая попытка с тем же ключом успела сохранить заказ.
		order, err = s.orders.Get(ctx, orderID)
	}
	if err != nil {
		return nil, s.statusError(err, "CreateOrder", orderID)
	}
	return &shiftlabv1.CreateOrderResponse{Order: shiftlabv1.OrderFromDomain(order)}, nil
}

// UpdateOrder заменяет содержимое заказа.
func (s *ServiceOrderService) UpdateOrder(ctx context.Context, req *shiftlabv1.UpdateOrderRequest) (*shiftlabv1.UpdateOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	input, err := req.Order.ToLifecycle(s.orders.Location())
	if err != nil {
		return nil, s.statusError(err, "UpdateOrder", req.OrderID)
	}
	order, err := s.orders.Update(ctx, lifecycle.UpdateOrderCommand{
		OrderID:         req.OrderID,
		ExpectedVersion: req.ExpectedVersion,
		Input:           input,
	})
	if err != nil {
		return nil, s.statusError(err, "UpdateOrder", req.OrderID)
	}
	return &shiftlabv1.UpdateOrderResponse{Order: shiftlabv1.OrderFromDomain(order)}, nil
}

// VoidOrder аннулирует заказ и возвращает остатки на склад.
func (s *ServiceOrderService) VoidOrder(ctx context.Context, req *shiftlabv1.VoidOrderRequest) (*shiftlabv1.VoidOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := s.orders.Void(ctx, lifecycle.VoidOrderCommand{
		OrderID:         req.OrderID,
		ExpectedVersion: req.ExpectedVersion,
		Reason:          req.Reason,
	})
	if err != nil {
		return nil, s.statusError(err, "VoidOrder", req.OrderID)
	}
	return &shiftlabv1.VoidOrderResponse{Order: shiftlabv1.OrderFromDomain(order)}, nil
}

// GetOrder возвращает заказ и его историю.
func (s *ServiceOrderService) GetOrder(ctx context.Context, req *shiftlabv1.GetOrderRequest) (*shiftlabv1.GetOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, s.statusError(err, "GetOrder", req.OrderID)
	}
	timeline, err := s.orders.Timeline(ctx, req.OrderID)
	if err != nil {
		return nil, s.statusError(err, "GetOrder", req.OrderID)
	}
	return &shiftlabv1.GetOrderResponse{
		Order:    shiftlabv1.OrderFromDomain(order),
		Timeline: shiftlabv1.TimelineFromDomain(timeline),
	}, nil
}

// ListOrders возвращает страницу заказов по фильтру.
func (s *ServiceOrderService) ListOrders(ctx context.Context, req *shiftlabv1.ListOrdersRequest) (*shiftlabv1.ListOrdersResponse, error) {
	if req == nil {
		req = &shiftlabv1.ListOrdersRequest{}
	}
	query, err := req.ToQuery()
	if err != nil {
		return nil, s.statusError(err, "ListOrders", "")
	}
	page, err := s.orders.List(ctx, query)
	if err != nil {
		return nil, s.statusError(err, "ListOrders", "")
	}
	return &shiftlabv1.ListOrdersResponse{
		Orders: shiftlabv1.OrdersFromDomain(page.Orders),
		Total:  int32(page.Total), //nolint:gosec // размер страницы ограничен фильтром.
	}, nil
}

// VehicleHistory возвращает все заказы автомобиля.
func (s *ServiceOrderService) VehicleHistory(ctx context.Context, req *shiftlabv1.VehicleHistoryRequest) (*shiftlabv1.VehicleHistoryResponse, error) {
	if req == nil || strings.TrimSpace(req.VehicleID) == "" {
		return nil, status.Error(codes.InvalidArgument, "vehicle_id is required")
	}
	orders, err := s.orders.History(ctx, req.VehicleID)
	if err != nil {
		return nil, s.statusError(err, "VehicleHistory", "")
	}
	return &shiftlabv1.VehicleHistoryResponse{Orders: shiftlabv1.OrdersFromDomain(orders)}, nil
}

// UpcomingServices возвращает автомобили, которым скоро нужна замена масла.
func (s *ServiceOrderService) UpcomingServices(ctx context.Context, req *shiftlabv1.UpcomingServicesRequest) (*shiftlabv1.UpcomingServicesResponse, error) {
	if req == nil {
		req = &shiftlabv1.UpcomingServicesRequest{}
	}
	alerts, err := s.orders.Upcoming(ctx, int(req.DaysAhead), int(req.KmAhead))
	if err != nil {
		return nil, s.statusError(err, "UpcomingServices", "")
	}
	return &shiftlabv1.UpcomingServicesResponse{Alerts: shiftlabv1.AlertsFromDomain(alerts)}, nil
}

// Statistics возвращает сводку по действующим заказам за период.
func (s *ServiceOrderService) Statistics(ctx context.Context, req *shiftlabv1.StatisticsRequest) (*shiftlabv1.StatisticsResponse, error) {
	if req == nil {
		req = &shiftlabv1.StatisticsRequest{}
	}
	from, err := shiftlabv1.ParseDateFilter("from", req.From)
	if err != nil {
		return nil, s.statusError(err, "Statistics", "")
	}
	to, err := shiftlabv1.ParseDateFilter("to", req.To)
	if err != nil {
		return nil, s.statusError(err, "Statistics", "")
	}
	stats, err := s.orders.Statistics(ctx, from, to)
	if err != nil {
		return nil, s.statusError(err, "Statistics", "")
	}
	return &shiftlabv1.StatisticsResponse{Statistics: shiftlabv1.StatisticsFromDomain(stats)}, nil
}

// Restock оформляет приход товара на склад.
func (s *ServiceOrderService) Restock(ctx context.Context, req *shiftlabv1.RestockRequest) (*shiftlabv1.RestockResponse, error) {
	if req == nil || strings.TrimSpace(req.ItemID) == "" {
		return nil, status.Error(codes.InvalidArgument, "item_id is required")
	}
	adjustment, err := s.orders.Restock(ctx, req.ItemID, req.Quantity, req.Note)
	if err != nil {
		return nil, s.statusError(err, "Restock", "")
	}
	return &shiftlabv1.RestockResponse{Adjustment: shiftlabv1.AdjustmentFromDomain(adjustment)}, nil
}

// StockMovements возвращает позицию склада и её журнал движений.
func (s *ServiceOrderService) StockMovements(ctx context.Context, req *shiftlabv1.StockMovementsRequest) (*shiftlabv1.StockMovementsResponse, error) {
	if req == nil || strings.TrimSpace(req.ItemID) == "" {
		return nil, status.Error(codes.InvalidArgument, "item_id is required")
	}
	item, err := s.orders.CatalogItem(ctx, req.ItemID)
	if err != nil {
		return nil, s.statusError(err, "StockMovements", "")
	}
	adjustments, err := s.orders.StockMovements(ctx, req.ItemID, int(req.Limit))
	if err != nil {
		return nil, s.statusError(err, "StockMovements", "")
	}
	return &shiftlabv1.StockMovementsResponse{
		Item:        shiftlabv1.CatalogItemFromDomain(item),
		Adjustments: shiftlabv1.AdjustmentsFromDomain(adjustments),
	}, nil
}

// statusError переводит доменную ошибку в gRPC-статус и пишет её в лог.
func (s *ServiceOrderService) statusError(err error, operation, orderID string) error {
	st := ToStatus(err)
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"code":      st.Code().String(),
	})
	if orderID != "" {
		entry = entry.WithField("order_id", orderID)
	}
	switch st.Code() {
	case codes.Internal, codes.Unavailable:
		entry.Error("service order operation failed")
	default:
		entry.Debug("service order operation rejected")
	}
	return st.Err()
}

// ToStatus переводит доменную ошибку в gRPC-статус с деталями.
func ToStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if st, ok := status.FromError(err); ok {
		return st
	}

	var validation *domain.ValidationError
	switch {
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &validation):
		violations := make([]*errdetails.BadRequest_FieldViolation, 0, len(validation.Problems))
		for _, problem := range validation.Problems {
			violations = append(violations, &errdetails.BadRequest_FieldViolation{
				Field:       problem.Field,
				Description: problem.Message,
			})
		}
		return withDetails(status.New(codes.InvalidArgument, err.Error()), &errdetails.BadRequest{FieldViolations: violations})
	case domain.IsValidation(err):
		return status.New(codes.InvalidArgument, err.Error())
	case domain.IsNotFound(err):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		st := status.New(codes.FailedPrecondition, err.Error())
		if stockErr, ok := domain.AsInsufficientStock(err); ok {
			st = withDetails(st, &errdetails.PreconditionFailure{
				Violations: []*errdetails.PreconditionFailure_Violation{{
					Type:        "STOCK",
					Subject:     stockErr.ItemID,
					Description: "shortfall " + stockErr.Shortfall().String(),
				}},
			})
		}
		return st
	case errors.Is(err, domain.ErrOrderVoided):
		return status.New(codes.FailedPrecondition, err.Error())
	case domain.IsConcurrentModification(err):
		return status.New(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrDuplicate):
		return status.New(codes.AlreadyExists, err.Error())
	case domain.IsStorageUnavailable(err):
		return status.New(codes.Unavailable, "storage unavailable")
	default:
		return status.New(codes.Internal, "internal error")
	}
}

func withDetails(st *status.Status, detail protoadapt.MessageV1) *status.Status {
	detailed, err := st.WithDetails(detail)
	if err != nil {
		return st
	}
	return detailed
}

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// replayCreate восстанавливает ответ предыдущего выполнения.
// replayed=false означает, что прошлая попытка упала на временной ошибке и запрос нужно выполнить снова.
func (s *ServiceOrderService) replayCreate(record domain.IdempotencyRecord) (*shiftlabv1.CreateOrderResponse, bool, error) {
	switch record.Status {
	case domain.IdempotencyStatusDone:
		resp := &shiftlabv1.CreateOrderResponse{}
		if err := json.Unmarshal(record.ResponseBody, resp); err != nil || resp.Order == nil {
			s.logger.WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
			return nil, true, status.Error(codes.Internal, "failed to decode cached idempotency response")
		}
		return resp, true, nil
	case domain.IdempotencyStatusFailed:
		st := decodeIdempotencyFailure(record)
		if retryable(st.Code()) {
			return nil, false, nil
		}
		return nil, true, st.Err()
	default:
		return nil, true, status.Error(codes.Internal, "unknown idempotency record status")
	}
}

// rememberCreate сохраняет результат выполнения под ключом.
func (s *ServiceOrderService) rememberCreate(ctx context.Context, key string, resp *shiftlabv1.CreateOrderResponse, runErr error) {
	logger := s.logger.WithField("idempotency_key", key)
	if runErr == nil {
		body, err := json.Marshal(resp)
		if err == nil {
			err = s.guard.Complete(ctx, key, body, int(codes.OK))
		}
		if err != nil {
			logger.WithError(err).Warn("failed to store idempotent success response")
		}
		return
	}

	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}
	body, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code — ограниченное перечисление.
		Message: st.Message(),
	})
	if err != nil {
		body = nil
	}
	if err := s.guard.Fail(ctx, key, body, int(code)); err != nil {
		logger.WithError(err).Warn("failed to store idempotency failure response")
	}
}

func decodeIdempotencyFailure(record domain.IdempotencyRecord) *status.Status {
	const fallback = "previous request with the same idempotency key failed"

	if len(record.ResponseBody) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.ResponseBody, &payload); err == nil {
			if code, ok := grpcCode(int(payload.Code)); ok && code != codes.OK {
				if payload.Message == "" {
					payload.Message = fallback
				}
				return status.New(code, payload.Message)
			}
		}
	}
	if code, ok := grpcCode(record.StatusCode); ok && code != codes.OK {
		return status.New(code, fallback)
	}
	return status.New(codes.Internal, fallback)
}

func grpcCode(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true //nolint:gosec // диапазон проверен выше.
}

// retryable — коды, после которых повтор с тем же ключом выполняется заново.
func retryable(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.Aborted, codes.DeadlineExceeded, codes.Canceled, codes.Internal:
		return true
	default:
		return false
	}
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(idempotencyKeyHeader); len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), nil
		}
	}
	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

var _ shiftlabv1.ServiceOrderServiceServer = (*ServiceOrderService)(nil)
