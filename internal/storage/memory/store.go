package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sahaalaf/sashop/internal/domain"
)

// Store — in-memory хранилище каталога и заказов для локальной разработки и тестов.
//
// Транзакции выполняются строго по одной (txMu), изменения копятся в overlay
// и применяются под mu только при успешном завершении.
type Store struct {
	txMu sync.Mutex

	mu         sync.RWMutex
	products   map[string]domain.Product
	orders     map[string]domain.Order
	userOrders map[string][]string
	timeline   map[string][]domain.TimelineEvent
	outbox     map[string]*outboxRecord
	outboxSeq  int64
	reviews    map[string][]domain.Review
}

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		products:   make(map[string]domain.Product),
		orders:     make(map[string]domain.Order),
		userOrders: make(map[string][]string),
		timeline:   make(map[string][]domain.TimelineEvent),
		outbox:     make(map[string]*outboxRecord),
		reviews:    make(map[string][]domain.Review),
	}
}

// Ping всегда успешен: хранилище живёт в памяти процесса.
func (s *Store) Ping(context.Context) error {
	return nil
}

type unitOfWork struct {
	store *Store
}

// NewUnitOfWork возвращает UnitOfWork поверх in-memory Store.
func NewUnitOfWork(store *Store) domain.UnitOfWork {
	return &unitOfWork{store: store}
}

func (u *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.store.txMu.Lock()
	defer u.store.txMu.Unlock()

	tx := newTx(u.store)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.commit()
	return nil
}

type userOrderLink struct {
	userID  string
	orderID string
}

// tx накапливает изменения одной транзакции.
type tx struct {
	store *Store

	products   map[string]domain.Product
	orders     map[string]domain.Order
	userOrders []userOrderLink
	timeline   []domain.TimelineEvent
	outbox     []domain.OutboxMessage
}

func newTx(store *Store) *tx {
	return &tx{
		store:    store,
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
}

func (t *tx) Product(_ context.Context, id string) (domain.Product, error) {
	if product, ok := t.products[id]; ok {
		return product.Clone(), nil
	}

	t.store.mu.RLock()
	product, ok := t.store.products[id]
	t.store.mu.RUnlock()
	if !ok {
		return domain.Product{}, &domain.ProductNotFoundError{ProductID: id}
	}
	return product.Clone(), nil
}

func (t *tx) DebitStock(ctx context.Context, productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	product, err := t.Product(ctx, productID)
	if err != nil {
		return err
	}
	if product.Quantity < qty {
		return &domain.InsufficientStockError{
			ProductID: product.ID,
			Name:      product.Name,
			Available: product.Quantity,
			Requested: qty,
		}
	}

	product.Quantity -= qty
	product.UpdatedAt = time.Now().UTC()
	t.products[productID] = product
	return nil
}

func (t *tx) CreditStock(ctx context.Context, productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	product, err := t.Product(ctx, productID)
	if err != nil {
		return err
	}
	if product.Quantity > math.MaxInt32-qty {
		return fmt.Errorf("credit %d units to product %s: %w", qty, productID, domain.ErrStockOverflow)
	}

	product.Quantity += qty
	product.UpdatedAt = time.Now().UTC()
	t.products[productID] = product
	return nil
}

func (t *tx) CreateOrder(_ context.Context, order domain.Order) error {
	if _, ok := t.orders[order.ID]; ok {
		return domain.ErrOrderAlreadyExists
	}

	t.store.mu.RLock()
	_, exists := t.store.orders[order.ID]
	t.store.mu.RUnlock()
	if exists {
		return domain.ErrOrderAlreadyExists
	}

	t.orders[order.ID] = order.Clone()
	return nil
}

func (t *tx) Order(_ context.Context, id string) (domain.Order, error) {
	if order, ok := t.orders[id]; ok {
		return order.Clone(), nil
	}

	t.store.mu.RLock()
	order, ok := t.store.orders[id]
	t.store.mu.RUnlock()
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (t *tx) UpdateOrderStatus(ctx context.Context, order domain.Order) error {
	current, err := t.Order(ctx, order.ID)
	if err != nil {
		return err
	}

	current.Status = order.Status
	current.Payment.Status = order.Payment.Status
	current.UpdatedAt = order.UpdatedAt
	current.DeliveredAt = order.DeliveredAt
	t.orders[order.ID] = current.Clone()
	return nil
}

func (t *tx) AppendUserOrder(_ context.Context, userID, orderID string) error {
	t.userOrders = append(t.userOrders, userOrderLink{userID: userID, orderID: orderID})
	return nil
}

func (t *tx) AppendTimeline(_ context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	t.timeline = append(t.timeline, event)
	return nil
}

func (t *tx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	t.outbox = append(t.outbox, msg)
	return msg, nil
}

func (t *tx) commit() {
	s := t.store
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, product := range t.products {
		s.products[id] = product
	}
	for id, order := range t.orders {
		s.orders[id] = order
	}
	for _, link := range t.userOrders {
		s.userOrders[link.userID] = append(s.userOrders[link.userID], link.orderID)
	}
	for _, event := range t.timeline {
		s.timeline[event.OrderID] = append(s.timeline[event.OrderID], event)
	}
	for _, msg := range t.outbox {
		s.outboxSeq++
		s.outbox[msg.ID] = &outboxRecord{
			msg:       msg,
			seq:       s.outboxSeq,
			status:    "pending",
			createdAt: now,
			updatedAt: now,
		}
	}
}

var (
	_ domain.UnitOfWork = (*unitOfWork)(nil)
	_ domain.Tx         = (*tx)(nil)
)
