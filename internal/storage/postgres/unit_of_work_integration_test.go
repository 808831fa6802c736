package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sahaalaf/sashop/internal/domain"
)

func TestUnitOfWork_PostgresCommit(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedProductForIntegrationTest(t, store, "p-1", 5, 1000)
	uow := NewUnitOfWork(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order := sampleOrder("order-1", "user-1", now)

	err := uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		product, err := tx.Product(ctx, "p-1")
		if err != nil {
			return err
		}
		if product.Quantity != 5 {
			t.Errorf("unexpected locked quantity: %d", product.Quantity)
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.DebitStock(ctx, "p-1", 2); err != nil {
			return err
		}
		if err := tx.AppendUserOrder(ctx, "user-1", order.ID); err != nil {
			return err
		}
		if err := tx.AppendTimeline(ctx, domain.TimelineEvent{OrderID: order.ID, Type: domain.TimelineOrderCreated, Occurred: now}); err != nil {
			return err
		}
		msg, err := domain.NewOrderEventMessage(domain.EventOrderCreated, order, "", now)
		if err != nil {
			return err
		}
		_, err = tx.EnqueueOutbox(ctx, msg)
		return err
	})
	if err != nil {
		t.Fatalf("commit tx: %v", err)
	}

	product, err := NewProductRepository(store).Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", product.Quantity)
	}
	if product.Specs["ram"] != "8GB" {
		t.Fatalf("unexpected specs: %+v", product.Specs)
	}

	stored, err := NewOrderRepository(store).Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.UserID != "user-1" || stored.TotalPriceMinor != 2500 || len(stored.Items) != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}
	if stored.Shipping.Email != "ann@example.com" || stored.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("unexpected shipping/payment: %+v %+v", stored.Shipping, stored.Payment)
	}

	history, err := NewOrderRepository(store).ListByUser(ctx, "user-1", 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("unexpected user history: %+v err=%v", history, err)
	}

	events, err := NewTimelineRepository(store).List(ctx, order.ID)
	if err != nil || len(events) != 1 || events[0].Type != domain.TimelineOrderCreated {
		t.Fatalf("unexpected timeline: %+v err=%v", events, err)
	}

	pending, err := NewOutboxRepository(store).PullPending(ctx, 0)
	if err != nil || len(pending) != 1 || pending[0].EventType != domain.EventOrderCreated {
		t.Fatalf("unexpected outbox: %+v err=%v", pending, err)
	}
}

func TestUnitOfWork_PostgresRollbackOnInsufficientStock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedProductForIntegrationTest(t, store, "p-1", 5, 1000)
	seedProductForIntegrationTest(t, store, "p-2", 1, 1000)
	uow := NewUnitOfWork(store)
	ctx := context.Background()

	order := sampleOrder("order-rollback", "user-1", time.Now().UTC())
	err := uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.DebitStock(ctx, "p-1", 2); err != nil {
			return err
		}
		return tx.DebitStock(ctx, "p-2", 3)
	})

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Available != 1 || stockErr.Requested != 3 {
		t.Fatalf("unexpected stock error: %+v", stockErr)
	}

	for id, want := range map[string]int32{"p-1": 5, "p-2": 1} {
		product, err := NewProductRepository(store).Get(ctx, id)
		if err != nil {
			t.Fatalf("get product %s: %v", id, err)
		}
		if product.Quantity != want {
			t.Fatalf("product %s: expected %d, got %d", id, want, product.Quantity)
		}
	}
	if _, err := NewOrderRepository(store).Get(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected rolled back order, got %v", err)
	}
}

func TestUnitOfWork_PostgresStatusUpdateAndCredit(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedProductForIntegrationTest(t, store, "p-1", 0, 1000)
	uow := NewUnitOfWork(store)
	ctx := context.Background()

	order := sampleOrder("order-cancel", "user-1", time.Now().UTC().Round(time.Microsecond))
	if err := uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.CreateOrder(ctx, order)
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	err := uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		locked, err := tx.Order(ctx, order.ID)
		if err != nil {
			return err
		}
		locked.Status = domain.OrderStatusCancelled
		locked.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrderStatus(ctx, locked); err != nil {
			return err
		}
		for _, item := range locked.Items {
			if err := tx.CreditStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("cancel tx: %v", err)
	}

	product, err := NewProductRepository(store).Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 2 {
		t.Fatalf("expected credited quantity 2, got %d", product.Quantity)
	}

	stored, err := NewOrderRepository(store).Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", stored.Status)
	}

	err = uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.UpdateOrderStatus(ctx, domain.Order{ID: "missing", Status: domain.OrderStatusShipped})
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	err = uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.CreditStock(ctx, "missing", 1)
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestUnitOfWork_PostgresConcurrentDebitsNeverOversell(t *testing.T) {
	const (
		stock   = 5
		workers = 20
	)

	store := openPostgresStoreForIntegrationTest(t)
	seedProductForIntegrationTest(t, store, "p-hot", stock, 1000)
	uow := NewUnitOfWork(store)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := uow.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
				if _, err := tx.Product(ctx, "p-hot"); err != nil {
					return err
				}
				return tx.DebitStock(ctx, "p-hot", 1)
			})
			if err == nil {
				success.Add(1)
			} else if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected debit error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success.Load() != stock {
		t.Fatalf("expected %d successful debits, got %d", stock, success.Load())
	}
	product, err := NewProductRepository(store).Get(context.Background(), "p-hot")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 0 {
		t.Fatalf("expected zero stock, got %d", product.Quantity)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23514"}) {
		t.Fatal("check violation must not be reported as unique")
	}
	if !isCheckViolation(&pgconn.PgError{Code: "23514"}) {
		t.Fatal("expected check violation for code 23514")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
	if !isOutOfRange(&pgconn.PgError{Code: "22003"}) || isOutOfRange(errors.New("plain error")) {
		t.Fatal("only code 22003 is an out-of-range error")
	}
	if !isForeignKeyViolation(&pgconn.PgError{Code: "23503"}) || isForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("only code 23503 is a foreign key violation")
	}
}
