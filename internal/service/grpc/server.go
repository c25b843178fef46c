package grpcsvc

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	shiftlabv1 "github.com/vladislavdragonenkov/shiftlab/api/shiftlab/v1"
)

// NewServer собирает gRPC-сервер с метриками, health-сервисом и API заказов.
// registerer=nil означает prometheus.DefaultRegisterer.
func NewServer(service shiftlabv1.ServiceOrderServiceServer, logger *log.Entry, registerer prometheus.Registerer, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = log.WithField("component", "grpc-server")
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcMetrics.UnaryServerInterceptor(),
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		),
	}, opts...)
	server := grpc.NewServer(serverOpts...)

	shiftlabv1.RegisterServiceOrderServiceServer(server, service)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(shiftlabv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	grpcMetrics.InitializeMetrics(server)
	return server, healthServer
}

// LoggingInterceptor пишет в лог метод, код ответа и длительность вызова.
func LoggingInterceptor(logger *log.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		entry := logger.WithFields(log.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(started).String(),
		})
		if err != nil && status.Code(err) == codes.Internal {
			entry.Warn("grpc call failed")
		} else {
			entry.Debug("grpc call finished")
		}
		return resp, err
	}
}

// RecoveryInterceptor превращает панику обработчика в codes.Internal.
func RecoveryInterceptor(logger *log.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(log.Fields{
					"method": info.FullMethod,
					"panic":  r,
					"stack":  string(debug.Stack()),
				}).Error("grpc handler panicked")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
