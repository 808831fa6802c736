package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sahaalaf/sashop/internal/domain"
)

const orderColumns = `
	id, user_id, status,
	items_price_minor, shipping_price_minor, total_price_minor,
	shipping_name, shipping_address, shipping_city, shipping_postal_code,
	shipping_country, shipping_phone, shipping_email,
	payment_method, payment_status, stripe_payment_id,
	idempotency_key, created_at, updated_at, delivered_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return getOrder(ctx, r.db, id, false)
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		return listOrders(ctx, r.db, query+` LIMIT $1`, limit)
	}
	return listOrders(ctx, r.db, query)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id IN (SELECT order_id FROM user_orders WHERE user_id = $1)
		ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		return listOrders(ctx, r.db, query+` LIMIT $2`, userID, limit)
	}
	return listOrders(ctx, r.db, query, userID)
}

func (r *orderRepository) DailyRevenue(ctx context.Context) ([]domain.DailyRevenue, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       SUM(total_price_minor)
		FROM orders
		GROUP BY day
		ORDER BY day ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query daily revenue: %w", err)
	}
	defer rows.Close()

	result := make([]domain.DailyRevenue, 0)
	for rows.Next() {
		var day domain.DailyRevenue
		if err := rows.Scan(&day.Day, &day.TotalMinor); err != nil {
			return nil, fmt.Errorf("scan daily revenue: %w", err)
		}
		result = append(result, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily revenue: %w", err)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		status        string
		paymentMethod string
		paymentStatus string
		deliveredAt   sql.NullTime
	)

	err := row.Scan(
		&order.ID, &order.UserID, &status,
		&order.ItemsPriceMinor, &order.ShippingPriceMinor, &order.TotalPriceMinor,
		&order.Shipping.Name, &order.Shipping.Address, &order.Shipping.City, &order.Shipping.PostalCode,
		&order.Shipping.Country, &order.Shipping.Phone, &order.Shipping.Email,
		&paymentMethod, &paymentStatus, &order.Payment.StripePaymentID,
		&order.IdempotencyKey, &order.CreatedAt, &order.UpdatedAt, &deliveredAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.Payment.Method = domain.PaymentMethod(paymentMethod)
	order.Payment.Status = domain.PaymentStatus(paymentStatus)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if deliveredAt.Valid {
		delivered := deliveredAt.Time.UTC()
		order.DeliveredAt = &delivered
	}
	return order, nil
}

// getOrder читает заказ с позициями; forUpdate блокирует строку заказа до конца транзакции.
func getOrder(ctx context.Context, q queryer, id string, forUpdate bool) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := loadItems(ctx, q, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func listOrders(ctx context.Context, q queryer, query string, args ...any) ([]domain.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	_ = rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
	}
	itemsByOrder, err := loadItemsForOrders(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		items := itemsByOrder[orders[i].ID]
		if items == nil {
			items = make([]domain.OrderItem, 0)
		}
		orders[i].Items = items
	}

	return orders, nil
}

// loadItemsForOrders читает позиции пачки заказов одним запросом.
func loadItemsForOrders(ctx context.Context, q queryer, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, name, image, price_minor, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no ASC
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order items batch: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Image, &item.PriceMinor, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		result[orderID] = append(result[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return result, nil
}

func loadItems(ctx context.Context, q queryer, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, name, image, price_minor, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Image, &item.PriceMinor, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
