package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sahaalaf/sashop/internal/domain"
)

const txTimeout = 10 * time.Second

type unitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork создаёт UnitOfWork поверх транзакций PostgreSQL (READ COMMITTED).
//
// Остатки защищены блокировками строк: чтение через Tx.Product идёт с FOR UPDATE,
// а списание выполняется условным UPDATE, который не даёт quantity уйти ниже нуля.
func NewUnitOfWork(store *Store) domain.UnitOfWork {
	return &unitOfWork{db: store.DB()}
}

func (u *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	sqlTx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Product(ctx context.Context, id string) (domain.Product, error) {
	return getProduct(ctx, t.tx, id, true)
}

func (t *pgTx) DebitStock(ctx context.Context, productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $1,
		    updated_at = $3
		WHERE id = $2
		  AND quantity >= $1
	`, qty, productID, time.Now().UTC())
	if err != nil {
		if isCheckViolation(err) {
			return t.insufficient(ctx, productID, qty)
		}
		return fmt.Errorf("debit stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for debit: %w", err)
	}
	if affected == 0 {
		return t.insufficient(ctx, productID, qty)
	}
	return nil
}

// insufficient различает отсутствующий товар и нехватку остатка после неудачного списания.
func (t *pgTx) insufficient(ctx context.Context, productID string, qty int32) error {
	product, err := getProduct(ctx, t.tx, productID, false)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{
		ProductID: product.ID,
		Name:      product.Name,
		Available: product.Quantity,
		Requested: qty,
	}
}

func (t *pgTx) CreditStock(ctx context.Context, productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $1,
		    updated_at = $3
		WHERE id = $2
	`, qty, productID, time.Now().UTC())
	if err != nil {
		if isOutOfRange(err) {
			return fmt.Errorf("credit %d units to product %s: %w", qty, productID, domain.ErrStockOverflow)
		}
		return fmt.Errorf("credit stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for credit: %w", err)
	}
	if affected == 0 {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	return nil
}

func (t *pgTx) CreateOrder(ctx context.Context, order domain.Order) error {
	var deliveredAt sql.NullTime
	if order.DeliveredAt != nil {
		deliveredAt = sql.NullTime{Time: *order.DeliveredAt, Valid: true}
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		order.ID, order.UserID, string(order.Status),
		order.ItemsPriceMinor, order.ShippingPriceMinor, order.TotalPriceMinor,
		order.Shipping.Name, order.Shipping.Address, order.Shipping.City, order.Shipping.PostalCode,
		order.Shipping.Country, order.Shipping.Phone, order.Shipping.Email,
		string(order.Payment.Method), string(order.Payment.Status), order.Payment.StripePaymentID,
		order.IdempotencyKey, order.CreatedAt, order.UpdatedAt, deliveredAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, line_no, product_id, name, image, price_minor, quantity
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			order.ID, i+1, item.ProductID, item.Name, item.Image, item.PriceMinor, item.Quantity,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (t *pgTx) Order(ctx context.Context, id string) (domain.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, order domain.Order) error {
	var deliveredAt sql.NullTime
	if order.DeliveredAt != nil {
		deliveredAt = sql.NullTime{Time: *order.DeliveredAt, Valid: true}
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    payment_status = $3,
		    updated_at = $4,
		    delivered_at = $5
		WHERE id = $1
	`, order.ID, string(order.Status), string(order.Payment.Status), order.UpdatedAt, deliveredAt)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for order status: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) AppendUserOrder(ctx context.Context, userID, orderID string) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_orders (user_id, order_id, created_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, order_id) DO NOTHING
	`, userID, orderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("append user order: %w", err)
	}
	return nil
}

func (t *pgTx) AppendTimeline(ctx context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, reason, occurred)
		VALUES ($1,$2,$3,$4)
	`, event.OrderID, event.Type, event.Reason, event.Occurred); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

func (t *pgTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now, now,
	)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}

	return msg, nil
}

var (
	_ domain.UnitOfWork = (*unitOfWork)(nil)
	_ domain.Tx         = (*pgTx)(nil)
)
