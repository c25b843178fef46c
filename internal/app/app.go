// Package app собирает процесс сервиса: хранилища, API, воркеры и HTTP-эндпоинты.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/shiftlab/internal/health"
	"github.com/vladislavdragonenkov/shiftlab/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shiftlab/internal/metrics"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/alerts"
	grpcsvc "github.com/vladislavdragonenkov/shiftlab/internal/service/grpc"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/inventory"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/outbox"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/reminder"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/rest"
	"github.com/vladislavdragonenkov/shiftlab/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// background — фоновая задача, живущая до отмены контекста.
type background struct {
	name string
	run  func(ctx context.Context)
}

// App — собранный сервис.
type App struct {
	cfg    Config
	logger *log.Entry

	deps     *runtimeDeps
	registry *prometheus.Registry
	service  *lifecycle.Service

	grpcServer *grpc.Server
	grpcHealth *health.Server
	router     http.Handler
	health     *healthcheck.Handler

	producer *kafka.Producer
	consumer *kafka.Consumer
	workers  []background

	grpcLis    net.Listener
	httpLis    net.Listener
	metricsLis net.Listener
}

// New открывает хранилища и собирает все компоненты. Слушатели не открываются.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.WithField("component", "app")
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		deps:     deps,
		registry: prometheus.NewRegistry(),
	}
	if err := a.build(ctx); err != nil {
		closeKafka(a.producer, logger)
		_ = deps.close(logger)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.SeedFile != "" {
		result, err := LoadSeedFile(ctx, cfg.SeedFile, a.deps.store)
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		a.logger.WithFields(log.Fields{
			"vehicles": result.Vehicles,
			"catalog":  result.CatalogItems,
		}).Info("master data seeded")
	}

	ledger := inventory.NewLedger(a.deps.store,
		inventory.WithLogger(log.WithField("component", "stock-ledger")),
		inventory.WithMetrics(metrics.NewLedgerMetricsWithRegisterer(a.registry)),
	)
	a.service = lifecycle.NewService(a.deps.store, ledger,
		lifecycle.WithLogger(log.WithField("component", "lifecycle")),
		lifecycle.WithMetrics(metrics.NewLifecycleMetricsWithRegisterer(a.registry)),
		lifecycle.WithLocation(cfg.Location()),
	)

	guard := idempotency.NewGuard(a.deps.idempotency, cfg.IdempotencyTTL, nil)
	orderService := grpcsvc.NewServiceOrderService(a.service,
		grpcsvc.WithLogger(log.WithField("component", "grpc")),
		grpcsvc.WithIdempotency(guard),
	)
	a.grpcServer, a.grpcHealth = grpcsvc.NewServer(orderService, log.WithField("component", "grpc-server"), a.registry)

	a.router = rest.NewRouter(rest.NewHandler(a.service,
		rest.WithLogger(log.WithField("component", "rest")),
		rest.WithIdempotency(guard),
	))

	a.health = healthcheck.NewHandler(version.Get().Version)
	a.health.RegisterChecker("storage", healthcheck.NewPingChecker("storage", a.deps.store.Ping))
	if a.deps.redis != nil {
		a.health.RegisterChecker("redis", healthcheck.NewPingChecker("redis", a.deps.redis.Ping))
	}

	a.buildMessaging()

	if a.deps.idempotencyCleanupNeeded() {
		cleanup := idempotency.NewCleanupWorker(a.deps.idempotency,
			idempotency.WithLogger(log.WithField("component", "idempotency-cleanup")),
			idempotency.WithMetrics(metrics.NewCleanupMetricsWithRegisterer(a.registry)),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
		a.workers = append(a.workers, background{name: "idempotency-cleanup", run: cleanup.Run})
	}

	if cfg.ReminderEnabled {
		scanner, err := reminder.NewScanner(a.service, a.deps.outbox,
			reminder.WithLogger(log.WithField("component", "reminder-scanner")),
			reminder.WithMetrics(metrics.NewReminderMetricsWithRegisterer(a.registry)),
			reminder.WithLocker(a.reminderLocker()),
			reminder.WithSchedule(cfg.ReminderSchedule),
			reminder.WithWindow(cfg.ReminderDaysAhead, cfg.ReminderKmAhead),
			reminder.WithLocation(cfg.Location()),
		)
		if err != nil {
			return fmt.Errorf("create reminder scanner: %w", err)
		}
		a.workers = append(a.workers, background{name: "reminder-scanner", run: func(ctx context.Context) {
			if err := scanner.Run(ctx); err != nil {
				a.logger.WithError(err).Error("reminder scanner stopped")
			}
		}})
	}
	return nil
}

// buildMessaging подключает outbox-воркер и consumer алертов, если Kafka настроена.
// Ошибка создания producer не останавливает сервис: события копятся в outbox.
func (a *App) buildMessaging() {
	cfg := a.cfg
	producer, err := initKafkaProducer(cfg, a.logger)
	if err != nil || producer == nil {
		return
	}
	a.producer = producer

	probe := kafka.NewProbe(cfg.KafkaBrokers, cfg.KafkaClientID)
	a.health.RegisterChecker("kafka", healthcheck.NewOptionalChecker("kafka", probe.Ping))

	worker := outbox.NewWorker(a.deps.outbox, kafka.NewOutboxPublisher(producer, ""),
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(a.registry)),
		outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, dlqTopic(cfg))),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	a.workers = append(a.workers, background{name: "outbox-worker", run: worker.Run})

	if cfg.KafkaConsumerGroup == "" {
		return
	}
	handler := alerts.NewHandler(log.WithField("component", "stock-alerts"), metrics.NewAlertMetricsWithRegisterer(a.registry))
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, alerts.Topics(), handler.Handle,
		kafka.WithConsumerLogger(log.WithField("component", "kafka-consumer")),
		kafka.WithDLQ(producer, dlqTopic(cfg)),
	)
	if err != nil {
		a.logger.WithError(err).Warn("failed to create alert consumer, continuing without it")
		return
	}
	a.consumer = consumer
}

func (a *App) reminderLocker() reminder.Locker {
	if a.deps.redis != nil {
		return reminder.NewRedisLocker(redislock.New(a.deps.redis.Redis()))
	}
	return reminder.LocalLocker{}
}

// listen открывает сетевые слушатели. Пустой адрес HTTP или метрик отключает сервер.
func (a *App) listen() error {
	if a.grpcLis != nil {
		return nil
	}
	var err error
	if a.grpcLis, err = net.Listen("tcp", a.cfg.GRPCAddr); err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	if a.cfg.HTTPAddr != "" {
		if a.httpLis, err = net.Listen("tcp", a.cfg.HTTPAddr); err != nil {
			_ = a.grpcLis.Close()
			return fmt.Errorf("listen http: %w", err)
		}
	}
	if a.cfg.MetricsAddr != "" {
		if a.metricsLis, err = net.Listen("tcp", a.cfg.MetricsAddr); err != nil {
			_ = a.grpcLis.Close()
			if a.httpLis != nil {
				_ = a.httpLis.Close()
			}
			return fmt.Errorf("listen metrics: %w", err)
		}
	}
	return nil
}

// metricsHandler отдаёт /metrics и health-эндпоинты.
func (a *App) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	a.health.Mux(mux)
	return mux
}

// Run обслуживает запросы до отмены ctx и корректно останавливает компоненты.
func (a *App) Run(ctx context.Context) error {
	if err := a.listen(); err != nil {
		_ = a.Close()
		return err
	}

	errCh := make(chan error, 3)
	go func() {
		a.logger.WithField("addr", a.grpcLis.Addr().String()).Info("grpc server listening")
		if err := a.grpcServer.Serve(a.grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var servers []*http.Server
	if a.httpLis != nil {
		servers = append(servers, a.serveHTTP("rest", a.httpLis, a.router, errCh))
	}
	if a.metricsLis != nil {
		servers = append(servers, a.serveHTTP("metrics", a.metricsLis, a.metricsHandler(), errCh))
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var wg sync.WaitGroup
	for _, w := range a.workers {
		wg.Add(1)
		go func(w background) {
			defer wg.Done()
			a.logger.WithField("worker", w.name).Info("background worker started")
			w.run(workerCtx)
		}(w)
	}
	if a.consumer != nil {
		if err := a.consumer.Start(workerCtx); err != nil {
			a.logger.WithError(err).Warn("failed to start alert consumer")
			a.consumer = nil
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case runErr = <-errCh:
		a.logger.WithError(runErr).Error("server failed, shutting down")
	}

	a.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	a.stopGRPC()
	for _, srv := range servers {
		shutdownHTTP(srv, a.cfg.ShutdownTimeout, a.logger)
	}
	stopWorkers()
	stopConsumer(a.consumer, a.logger)
	wg.Wait()

	if err := a.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to release resources")
	}
	return runErr
}

func (a *App) serveHTTP(name string, lis net.Listener, handler http.Handler, errCh chan<- error) *http.Server {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		a.logger.WithField("addr", lis.Addr().String()).Infof("%s server listening", name)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
	return srv
}

// stopGRPC ждёт завершения активных вызовов, но не дольше ShutdownTimeout.
func (a *App) stopGRPC() {
	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(a.cfg.ShutdownTimeout):
		a.logger.Warn("graceful stop timed out, forcing grpc shutdown")
		a.grpcServer.Stop()
	}
}

// Close закрывает producer и хранилища. Повторный вызов безопасен.
func (a *App) Close() error {
	closeKafka(a.producer, a.logger)
	a.producer = nil
	return a.deps.close(a.logger)
}

// Run собирает сервис и обслуживает запросы до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
