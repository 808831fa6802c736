package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sahaalaf/sashop/internal/domain"
)

type productRepositoryInMemory struct {
	store *Store
}

// NewProductRepository возвращает каталог поверх in-memory Store.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepositoryInMemory{store: store}
}

// Create заводит товар с начальным остатком; ID генерируется, если не задан.
func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.products[product.ID]; exists {
		return domain.ErrProductAlreadyExists
	}
	r.store.products[product.ID] = product.Clone()
	return nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	product, ok := r.store.products[id]
	if !ok || product.Archived() {
		return domain.Product{}, &domain.ProductNotFoundError{ProductID: id}
	}
	return product.Clone(), nil
}

// Update переписывает карточку товара, сохраняя остаток и дату создания.
// Update и Archive держат txMu, чтобы commit открытой транзакции не затёр карточку.
func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) error {
	r.store.txMu.Lock()
	defer r.store.txMu.Unlock()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.products[product.ID]
	if !ok || current.Archived() {
		return &domain.ProductNotFoundError{ProductID: product.ID}
	}

	product.Quantity = current.Quantity
	product.CreatedAt = current.CreatedAt
	product.ArchivedAt = nil
	product.UpdatedAt = time.Now().UTC()
	r.store.products[product.ID] = product.Clone()
	return nil
}

func (r *productRepositoryInMemory) Archive(_ context.Context, id string, at time.Time) error {
	r.store.txMu.Lock()
	defer r.store.txMu.Unlock()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.products[id]
	if !ok || current.Archived() {
		return &domain.ProductNotFoundError{ProductID: id}
	}

	at = at.UTC()
	current.ArchivedAt = &at
	current.UpdatedAt = at
	r.store.products[id] = current
	return nil
}

// List возвращает товары, новые первыми.
func (r *productRepositoryInMemory) List(_ context.Context, limit int) ([]domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.store.products))
	for _, product := range r.store.products {
		if product.Archived() {
			continue
		}
		result = append(result, product.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
