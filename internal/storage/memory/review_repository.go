package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sahaalaf/sashop/internal/domain"
)

type reviewRepositoryInMemory struct {
	store *Store
}

// NewReviewRepository возвращает отзывы поверх in-memory Store.
func NewReviewRepository(store *Store) domain.ReviewRepository {
	return &reviewRepositoryInMemory{store: store}
}

func (r *reviewRepositoryInMemory) Create(_ context.Context, review domain.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.reviews[review.ProductID] = append(r.store.reviews[review.ProductID], review)
	return nil
}

func (r *reviewRepositoryInMemory) ListByProduct(_ context.Context, productID string) ([]domain.Review, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := append([]domain.Review(nil), r.store.reviews[productID]...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

var _ domain.ReviewRepository = (*reviewRepositoryInMemory)(nil)
