package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shiftlab/internal/storage/memory"
	"github.com/vladislavdragonenkov/shiftlab/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/shiftlab/internal/storage/redis"
)

// dataStore — хранилище заказов, склада и справочников.
type dataStore interface {
	lifecycle.Store
	domain.MasterDataWriter
	domain.Pinger
}

// outboxStore — outbox, из которого читает воркер и в который пишет сканер напоминаний.
type outboxStore interface {
	domain.OutboxRepository
	domain.OutboxWriter
}

type closer struct {
	name  string
	close func() error
}

// runtimeDeps содержит инфраструктурные зависимости процесса.
type runtimeDeps struct {
	driver      string
	store       dataStore
	outbox      outboxStore
	idempotency domain.IdempotencyRepository
	redis       *redisstore.Client
	closers     []closer
}

// initRuntimeDependencies открывает хранилища согласно конфигурации.
// При ошибке уже открытые соединения закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDeps, error) {
	deps := &runtimeDeps{driver: cfg.StorageDriver}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		deps.store = store
		deps.outbox = store.Outbox()
		deps.idempotency = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres dsn is required")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN,
			postgres.WithLogger(logger.WithField("storage", "postgres")),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		deps.addCloser("postgres", store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				deps.close(logger)
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.store = store
		deps.outbox = store.Outbox()
		deps.idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.Open(ctx, cfg.RedisAddr,
			redisstore.WithPassword(cfg.RedisPassword),
			redisstore.WithDB(cfg.RedisDB),
		)
		if err != nil {
			deps.close(logger)
			return nil, fmt.Errorf("open redis: %w", err)
		}
		deps.addCloser("redis", client.Close)
		deps.redis = client
		deps.idempotency = redisstore.NewIdempotencyRepository(client)
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency keys stored in redis")
	}

	return deps, nil
}

func (d *runtimeDeps) addCloser(name string, fn func() error) {
	d.closers = append(d.closers, closer{name: name, close: fn})
}

// close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDeps) close(logger *log.Entry) error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		if err := c.close(); err != nil {
			logger.WithError(err).WithField("resource", c.name).Warn("failed to close resource")
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// idempotencyCleanupNeeded сообщает, нужно ли удалять просроченные ключи вручную.
// Redis удаляет их сам по TTL.
func (d *runtimeDeps) idempotencyCleanupNeeded() bool {
	return d.redis == nil
}
