package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shiftlab/internal/storage/memory"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	if _, ok := deps.store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", deps.store)
	}
	if deps.outbox == nil {
		t.Fatal("outbox should not be nil for memory storage")
	}
	if _, ok := deps.idempotency.(*memory.IdempotencyRepository); !ok {
		t.Fatalf("expected memory idempotency repository, got %T", deps.idempotency)
	}
	if !deps.idempotencyCleanupNeeded() {
		t.Fatal("memory idempotency keys must be cleaned up by the worker")
	}
	if err := deps.close(log.WithField("test", "memory-storage")); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil || !strings.Contains(err.Error(), "dsn") {
		t.Fatalf("expected dsn error, got %v", err)
	}
}

func TestInitRuntimeDependencies_UnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "mongo",
	}, log.WithField("test", "unknown-driver"))
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestRuntimeDeps_CloseInReverseOrder(t *testing.T) {
	t.Parallel()

	var order []string
	deps := &runtimeDeps{}
	deps.addCloser("postgres", func() error {
		order = append(order, "postgres")
		return nil
	})
	deps.addCloser("redis", func() error {
		order = append(order, "redis")
		return errors.New("connection reset")
	})

	err := deps.close(log.WithField("test", "close"))
	if err == nil || !strings.Contains(err.Error(), "close redis") {
		t.Fatalf("expected redis close error, got %v", err)
	}
	if strings.Join(order, ",") != "redis,postgres" {
		t.Fatalf("unexpected close order %v", order)
	}
	if err := deps.close(log.WithField("test", "close")); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
}
