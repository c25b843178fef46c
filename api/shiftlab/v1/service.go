package shiftlabv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "shiftlab.v1.ServiceOrderService"

// Полные имена методов.
const (
	ServiceOrderService_CreateOrder_FullMethodName      = "/" + ServiceName + "/CreateOrder"
	ServiceOrderService_UpdateOrder_FullMethodName      = "/" + ServiceName + "/UpdateOrder"
	ServiceOrderService_VoidOrder_FullMethodName        = "/" + ServiceName + "/VoidOrder"
	ServiceOrderService_GetOrder_FullMethodName         = "/" + ServiceName + "/GetOrder"
	ServiceOrderService_ListOrders_FullMethodName       = "/" + ServiceName + "/ListOrders"
	ServiceOrderService_VehicleHistory_FullMethodName   = "/" + ServiceName + "/VehicleHistory"
	ServiceOrderService_UpcomingServices_FullMethodName = "/" + ServiceName + "/UpcomingServices"
	ServiceOrderService_Statistics_FullMethodName       = "/" + ServiceName + "/Statistics"
	ServiceOrderService_Restock_FullMethodName          = "/" + ServiceName + "/Restock"
	ServiceOrderService_StockMovements_FullMethodName   = "/" + ServiceName + "/StockMovements"
)

// ServiceOrderServiceServer — серверная часть API.
type ServiceOrderServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	UpdateOrder(context.Context, *UpdateOrderRequest) (*UpdateOrderResponse, error)
	VoidOrder(context.Context, *VoidOrderRequest) (*VoidOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	VehicleHistory(context.Context, *VehicleHistoryRequest) (*VehicleHistoryResponse, error)
	UpcomingServices(context.Context, *UpcomingServicesRequest) (*UpcomingServicesResponse, error)
	Statistics(context.Context, *StatisticsRequest) (*StatisticsResponse, error)
	Restock(context.Context, *RestockRequest) (*RestockResponse, error)
	StockMovements(context.Context, *StockMovementsRequest) (*StockMovementsResponse, error)
}

// UnimplementedServiceOrderServiceServer отвечает Unimplemented на все методы.
type UnimplementedServiceOrderServiceServer struct{}

func (UnimplementedServiceOrderServiceServer) CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateOrder not implemented")
}

func (UnimplementedServiceOrderServiceServer) UpdateOrder(context.Context, *UpdateOrderRequest) (*UpdateOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateOrder not implemented")
}

func (UnimplementedServiceOrderServiceServer) VoidOrder(context.Context, *VoidOrderRequest) (*VoidOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method VoidOrder not implemented")
}

func (UnimplementedServiceOrderServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}

func (UnimplementedServiceOrderServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}

func (UnimplementedServiceOrderServiceServer) VehicleHistory(context.Context, *VehicleHistoryRequest) (*VehicleHistoryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method VehicleHistory not implemented")
}

func (UnimplementedServiceOrderServiceServer) UpcomingServices(context.Context, *UpcomingServicesRequest) (*UpcomingServicesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpcomingServices not implemented")
}

func (UnimplementedServiceOrderServiceServer) Statistics(context.Context, *StatisticsRequest) (*StatisticsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Statistics not implemented")
}

func (UnimplementedServiceOrderServiceServer) Restock(context.Context, *RestockRequest) (*RestockResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Restock not implemented")
}

func (UnimplementedServiceOrderServiceServer) StockMovements(context.Context, *StockMovementsRequest) (*StockMovementsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StockMovements not implemented")
}

// RegisterServiceOrderServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterServiceOrderServiceServer(s grpc.ServiceRegistrar, srv ServiceOrderServiceServer) {
	s.RegisterService(&ServiceOrderService_ServiceDesc, srv)
}

// unaryHandler декодирует запрос и вызывает метод через цепочку interceptor'ов.
func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(ServiceOrderServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(ServiceOrderServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceOrderService_ServiceDesc — дескриптор сервиса для grpc.Server.
var ServiceOrderService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ServiceOrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(ServiceOrderService_CreateOrder_FullMethodName, ServiceOrderServiceServer.CreateOrder)},
		{MethodName: "UpdateOrder", Handler: unaryHandler(ServiceOrderService_UpdateOrder_FullMethodName, ServiceOrderServiceServer.UpdateOrder)},
		{MethodName: "VoidOrder", Handler: unaryHandler(ServiceOrderService_VoidOrder_FullMethodName, ServiceOrderServiceServer.VoidOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(ServiceOrderService_GetOrder_FullMethodName, ServiceOrderServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(ServiceOrderService_ListOrders_FullMethodName, ServiceOrderServiceServer.ListOrders)},
		{MethodName: "VehicleHistory", Handler: unaryHandler(ServiceOrderService_VehicleHistory_FullMethodName, ServiceOrderServiceServer.VehicleHistory)},
		{MethodName: "UpcomingServices", Handler: unaryHandler(ServiceOrderService_UpcomingServices_FullMethodName, ServiceOrderServiceServer.UpcomingServices)},
		{MethodName: "Statistics", Handler: unaryHandler(ServiceOrderService_Statistics_FullMethodName, ServiceOrderServiceServer.Statistics)},
		{MethodName: "Restock", Handler: unaryHandler(ServiceOrderService_Restock_FullMethodName, ServiceOrderServiceServer.Restock)},
		{MethodName: "StockMovements", Handler: unaryHandler(ServiceOrderService_StockMovements_FullMethodName, ServiceOrderServiceServer.StockMovements)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shiftlab/v1/service_order.json",
}

// ServiceOrderServiceClient — клиент API. Все вызовы идут в JSON-кодеке.
type ServiceOrderServiceClient interface {
	CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error)
	UpdateOrder(ctx context.Context, in *UpdateOrderRequest, opts ...grpc.CallOption) (*UpdateOrderResponse, error)
	VoidOrder(ctx context.Context, in *VoidOrderRequest, opts ...grpc.CallOption) (*VoidOrderResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
	VehicleHistory(ctx context.Context, in *VehicleHistoryRequest, opts ...grpc.CallOption) (*VehicleHistoryResponse, error)
	UpcomingServices(ctx context.Context, in *UpcomingServicesRequest, opts ...grpc.CallOption) (*UpcomingServicesResponse, error)
	Statistics(ctx context.Context, in *StatisticsRequest, opts ...grpc.CallOption) (*StatisticsResponse, error)
	Restock(ctx context.Context, in *RestockRequest, opts ...grpc.CallOption) (*RestockResponse, error)
	StockMovements(ctx context.Context, in *StockMovementsRequest, opts ...grpc.CallOption) (*StockMovementsResponse, error)
}

type serviceOrderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewServiceOrderServiceClient создаёт клиента поверх соединения.
func NewServiceOrderServiceClient(cc grpc.ClientConnInterface) ServiceOrderServiceClient {
	return &serviceOrderServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *serviceOrderServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error) {
	return invoke[CreateOrderResponse](ctx, c.cc, ServiceOrderService_CreateOrder_FullMethodName, in, opts)
}

func (c *serviceOrderServiceClient) UpdateOrder(ctx context.Context, in *UpdateOrderRequest, opts ...grpc.CallOption) (*UpdateOrderResponse, error) {
	return invoke[UpdateOrderResponse](ctx, c.cc, ServiceOrderService_UpdateOrder_FullMethodName, in, opts)
}

func (c *serviceOrderServiceClient) VoidOrder(ctx context.Context, in *VoidOrderRequest, opts ...grpc.CallOption) (*VoidOrderResponse, error) {
	return invoke[VoidOrderResponse](ctx, c.cc, ServiceOrderService_VoidOrder_FullMethodName, in, opts)
}

func (c *serviceOrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, ServiceOrderService_GetOrder_FullMethodName, in, opts)
}

func (c *serviceOrderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, ServiceOrderService_ListOrders_FullMethodName, in, opts)
}

func (c *serviceOrderServiceClient) VehicleHistory(ctx context.Context, in *VehicleHistoryRequest, opts ...grpc.CallOption) (*VehicleHistoryResponse, error) {
	return invoke[VehicleHistoryResponse](ctx, c.cc, ServiceOrderService_VehicleHistory_FullMethodName, in, opts)
}

func (c *serviceOrderServiceClient) UpcomingServices(ctx context.Context, in *UpcomingServicesRequest, opts ...grpc.CallOption) (*UpcomingServicesResponse, error) {
	return invoke[UpcomingServicesResponse](ctx, c.cc, ServiceOrderService_UpcomingServices_FullMethodName, in, opts)
}

func (c *serviceOrderServiceClient) Statistics(ctx context.Context, in *StatisticsRequest, opts ...grpc.CallOption) (*StatisticsResponse, error) {
	return invoke[StatisticsResponse](ctx, c.cc, ServiceOrderService_Statistics_FullMethodName, in, opts)
}

func (c *serviceOrderServiceClient) Restock(ctx context.Context, in *RestockRequest, opts ...grpc.CallOption) (*RestockResponse, error) {
	return invoke[RestockResponse](ctx, c.cc, ServiceOrderService_Restock_FullMethodName, in, opts)
}

func (c *serviceOrderServiceClient) StockMovements(ctx context.Context, in *StockMovementsRequest, opts ...grpc.CallOption) (*StockMovementsResponse, error) {
	return invoke[StockMovementsResponse](ctx, c.cc, ServiceOrderService_StockMovements_FullMethodName, in, opts)
}

var _ ServiceOrderServiceServer = UnimplementedServiceOrderServiceServer{}
