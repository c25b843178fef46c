package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateServiceOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}
	second, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateCatalogItem, EventType: domain.EventStockLow})

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("expected messages in enqueue order, got %s, %s", pending[0].ID, pending[1].ID)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	saved, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateServiceOrder})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(ctx, saved.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if len(repo.AllPending()) != 0 {
		t.Fatal("sent message must leave pending set")
	}
	if err := repo.MarkFailed(ctx, saved.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing record")
	}
}

func TestOutboxRepository_DuplicateIDRejectedAfterSend(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	msg := domain.OutboxMessage{ID: "reminder-1", AggregateType: domain.AggregateVehicle, EventType: domain.EventServiceReminderDue}

	if _, err := repo.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := repo.Enqueue(ctx, msg); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for pending message, got %v", err)
	}
	if err := repo.MarkSent(ctx, msg.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if _, err := repo.Enqueue(ctx, msg); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for sent message, got %v", err)
	}
	if len(repo.AllPending()) != 0 {
		t.Fatalf("duplicate must not be queued again, got %d pending", len(repo.AllPending()))
	}
}
