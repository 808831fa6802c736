package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/storage/memory"
)

func newTestService() *Service {
	store := memory.NewStore()
	return NewService(memory.NewProductRepository(store), memory.NewReviewRepository(store), nil)
}

func TestService_CreateAndGet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, domain.Product{
		Name:       "  Pixel 9 ",
		Brand:      "Google",
		PriceMinor: 79900,
		Quantity:   4,
		Specs:      map[string]string{"os": "Android"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Pixel 9", created.Name)
	require.False(t, created.CreatedAt.IsZero())

	got, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int32(4), got.Quantity)
	require.Equal(t, "Android", got.Specs["os"])

	list, err := svc.ListProducts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestService_CreateRejectsInvalidProduct(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(context.Background(), domain.Product{Name: " ", PriceMinor: -1, Quantity: -2})
	require.ErrorIs(t, err, domain.ErrProductNameRequired)
	require.ErrorIs(t, err, domain.ErrProductPriceNegative)
	require.ErrorIs(t, err, domain.ErrProductQtyNegative)
	require.True(t, domain.IsValidation(err))
}

func TestService_CreateDuplicateAndMissing(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, domain.Product{ID: "p-1", Name: "Galaxy"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, domain.Product{ID: "p-1", Name: "Galaxy"})
	require.ErrorIs(t, err, domain.ErrProductAlreadyExists)

	_, err = svc.GetProduct(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestService_UpdateKeepsStockAndArchiveHides(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, domain.Product{ID: "p-1", Name: "Galaxy", PriceMinor: 1000, Quantity: 7})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, domain.Product{ID: "p-1", Name: " Galaxy S ", PriceMinor: 1200, Quantity: 100})
	require.NoError(t, err)
	require.Equal(t, "Galaxy S", updated.Name)
	require.Equal(t, int64(1200), updated.PriceMinor)
	require.Equal(t, int32(7), updated.Quantity)

	_, err = svc.UpdateProduct(ctx, domain.Product{ID: "p-1", Name: "", PriceMinor: -5})
	require.True(t, domain.IsValidation(err))

	require.NoError(t, svc.ArchiveProduct(ctx, "p-1"))
	require.ErrorIs(t, svc.ArchiveProduct(ctx, "p-1"), domain.ErrProductNotFound)

	_, err = svc.GetProduct(ctx, "p-1")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	list, err := svc.ListProducts(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = svc.UpdateProduct(ctx, domain.Product{ID: "p-1", Name: "Back"})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestService_Reviews(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, domain.Product{ID: "p-1", Name: "Pixel"})
	require.NoError(t, err)

	first, err := svc.AddReview(ctx, domain.Review{ProductID: "p-1", UserID: "u-1", Rating: 5, Comment: "  great battery life  "})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, "great battery life", first.Comment)

	svc.now = func() time.Time { return first.CreatedAt.Add(time.Minute) }
	second, err := svc.AddReview(ctx, domain.Review{ProductID: "p-1", UserID: "u-2", Rating: 3, Comment: "screen is average"})
	require.NoError(t, err)

	reviews, err := svc.ListReviews(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	require.Equal(t, second.ID, reviews[0].ID)
	require.Equal(t, first.ID, reviews[1].ID)

	_, err = svc.AddReview(ctx, domain.Review{ProductID: "p-1", UserID: "u-1", Rating: 6, Comment: "short"})
	require.ErrorIs(t, err, domain.ErrReviewRatingInvalid)
	require.ErrorIs(t, err, domain.ErrReviewCommentTooShort)
	require.True(t, domain.IsValidation(err))

	_, err = svc.AddReview(ctx, domain.Review{ProductID: "missing", UserID: "u-1", Rating: 4, Comment: "long enough comment"})
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = svc.ListReviews(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}
