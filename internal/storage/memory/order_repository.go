package memory

import (
	"context"
	"sort"

	"github.com/sahaalaf/sashop/internal/domain"
)

// orderRepositoryInMemory — чтение заказов из in-memory Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r *orderRepositoryInMemory) List(_ context.Context, limit int) ([]domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.store.orders))
	for _, order := range r.store.orders {
		result = append(result, order.Clone())
	}
	return newestFirst(result, limit), nil
}

// ListByUser идёт по истории покупателя, а не по полю UserID заказа.
func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := r.store.userOrders[userID]
	result := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		if order, ok := r.store.orders[id]; ok {
			result = append(result, order.Clone())
		}
	}
	return newestFirst(result, limit), nil
}

func (r *orderRepositoryInMemory) DailyRevenue(_ context.Context) ([]domain.DailyRevenue, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	byDay := make(map[string]int64)
	for _, order := range r.store.orders {
		byDay[order.CreatedAt.UTC().Format("2006-01-02")] += order.TotalPriceMinor
	}

	result := make([]domain.DailyRevenue, 0, len(byDay))
	for day, total := range byDay {
		result = append(result, domain.DailyRevenue{Day: day, TotalMinor: total})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

func newestFirst(orders []domain.Order, limit int) []domain.Order {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})

	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
