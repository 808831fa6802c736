package domain

import (
	"context"
	"time"
)

// Tx — операции, доступные внутри одной атомарной единицы работы.
//
// Все изменения остатков и заказов проходят только через Tx: либо фиксируются
// вместе, либо откатываются вместе.
type Tx interface {
	// Product читает товар с блокировкой строки до конца транзакции.
	Product(ctx context.Context, id string) (Product, error)
	// DebitStock уменьшает остаток; при нехватке возвращает *InsufficientStockError и ничего не меняет.
	DebitStock(ctx context.Context, productID string, qty int32) error
	// CreditStock возвращает товар на склад.
	CreditStock(ctx context.Context, productID string, qty int32) error

	CreateOrder(ctx context.Context, order Order) error
	// Order читает заказ с блокировкой до конца транзакции.
	Order(ctx context.Context, id string) (Order, error)
	// UpdateOrderStatus сохраняет Status, Payment.Status, UpdatedAt и DeliveredAt.
	UpdateOrderStatus(ctx context.Context, order Order) error
	// AppendUserOrder связывает заказ с историей покупателя.
	AppendUserOrder(ctx context.Context, userID, orderID string) error

	AppendTimeline(ctx context.Context, event TimelineEvent) error
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// UnitOfWork открывает транзакцию, вызывает fn и фиксирует её, если fn вернула nil.
// Любая ошибка из fn откатывает все изменения.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ProductRepository — чтение каталога и управление карточками товаров.
// Остаток меняется только через Tx; Update его не трогает.
// Get и List не видят товары, снятые с продажи.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, limit int) ([]Product, error)
	// Update сохраняет описание, цену, характеристики и флаги витрины.
	Update(ctx context.Context, product Product) error
	// Archive снимает товар с продажи; строка и остаток сохраняются.
	Archive(ctx context.Context, id string, at time.Time) error
}

// ReviewRepository хранит отзывы о товарах.
type ReviewRepository interface {
	Create(ctx context.Context, review Review) error
	// ListByProduct возвращает отзывы, новые первыми.
	ListByProduct(ctx context.Context, productID string) ([]Review, error)
}

// OrderRepository — чтение заказов вне транзакций.
type OrderRepository interface {
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает все заказы, новые первыми; limit <= 0 снимает ограничение.
	List(ctx context.Context, limit int) ([]Order, error)
	// ListByUser возвращает историю заказов покупателя.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// DailyRevenue группирует TotalPriceMinor по дню создания, по возрастанию дня.
	DailyRevenue(ctx context.Context) ([]DailyRevenue, error)
}

// TimelineRepository отдаёт события жизненного цикла заказа.
type TimelineRepository interface {
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository отдаёт накопленные события воркеру публикации.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release освобождает ключ в статусе processing, чтобы повтор дошёл до обработчика.
	// Отсутствующий ключ не считается ошибкой.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
