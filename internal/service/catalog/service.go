package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
)

// Service — операции каталога и отзывов. Остаток меняется только при создании товара.
type Service struct {
	products domain.ProductRepository
	reviews  domain.ReviewRepository
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, reviews domain.ReviewRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		products: products,
		reviews:  reviews,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateProduct заводит товар с начальным остатком.
func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}

	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}
	created, err := s.products.Get(ctx, product.ID)
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": created.ID,
		"quantity":   created.Quantity,
	}).Info("product created")
	return created, nil
}

// UpdateProduct меняет карточку товара. Quantity из запроса игнорируется:
// остаток двигают только заказы и отмены.
func (s *Service) UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	product.Name = strings.TrimSpace(product.Name)
	product.Quantity = 0
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, err
	}
	updated, err := s.products.Get(ctx, product.ID)
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithField("product_id", updated.ID).Info("product updated")
	return updated, nil
}

// ArchiveProduct снимает товар с продажи. Строка остаётся, чтобы отмена
// старых заказов могла вернуть остаток.
func (s *Service) ArchiveProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.products.Archive(ctx, id, s.now()); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product archived")
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.products.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) ListProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	return s.products.List(ctx, limit)
}

// AddReview сохраняет отзыв к товару из каталога.
func (s *Service) AddReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	review.ProductID = strings.TrimSpace(review.ProductID)
	review.Comment = strings.TrimSpace(review.Comment)
	if errs := review.ValidateInvariants(); len(errs) > 0 {
		return domain.Review{}, errors.Join(errs...)
	}
	if _, err := s.products.Get(ctx, review.ProductID); err != nil {
		return domain.Review{}, err
	}

	review.ID = uuid.NewString()
	review.CreatedAt = s.now()
	if err := s.reviews.Create(ctx, review); err != nil {
		return domain.Review{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": review.ProductID,
		"user_id":    review.UserID,
		"rating":     review.Rating,
	}).Info("review added")
	return review, nil
}

// ListReviews отдаёт отзывы, новые первыми.
func (s *Service) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	productID = strings.TrimSpace(productID)
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.reviews.ListByProduct(ctx, productID)
}
