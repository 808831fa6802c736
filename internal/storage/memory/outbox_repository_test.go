package memory

import (
	"context"
	"testing"

	"github.com/sahaalaf/sashop/internal/domain"
)

func enqueue(t *testing.T, store *Store, msgs ...domain.OutboxMessage) []domain.OutboxMessage {
	t.Helper()

	saved := make([]domain.OutboxMessage, 0, len(msgs))
	err := NewUnitOfWork(store).WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, msg := range msgs {
			out, err := tx.EnqueueOutbox(ctx, msg)
			if err != nil {
				return err
			}
			saved = append(saved, out)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	return saved
}

func TestOutboxRepository_PullPendingInOrder(t *testing.T) {
	store := NewStore()
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	saved := enqueue(t, store,
		domain.OutboxMessage{AggregateID: "order-1", EventType: domain.EventOrderCreated},
		domain.OutboxMessage{AggregateID: "order-1", EventType: domain.EventOrderStatusChanged},
		domain.OutboxMessage{AggregateID: "order-2", EventType: domain.EventOrderCreated},
	)
	if saved[0].ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := repo.PullPending(ctx, 2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].ID != saved[0].ID || pending[1].ID != saved[1].ID {
		t.Fatalf("expected insertion order, got %+v", pending)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 3 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	store := NewStore()
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	saved := enqueue(t, store,
		domain.OutboxMessage{AggregateID: "order-1", EventType: domain.EventOrderCreated},
		domain.OutboxMessage{AggregateID: "order-2", EventType: domain.EventOrderCreated},
	)

	if err := repo.MarkSent(ctx, saved[0].ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, saved[1].ID); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if err := repo.MarkSent(ctx, "unknown"); err != domain.ErrOutboxPublish {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}

	if store.outbox[saved[1].ID].status != "failed" || store.outbox[saved[1].ID].attemptCnt != 1 {
		t.Fatalf("unexpected failed record: %+v", store.outbox[saved[1].ID])
	}
}
