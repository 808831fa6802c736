// Package httpapi — REST API магазина поверх gin.
package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/metrics"
	"github.com/sahaalaf/sashop/internal/service/orders"
)

// OrderService — операции заказов, которые использует API.
type OrderService interface {
	CheckStock(ctx context.Context, requests []domain.StockRequest) (domain.StockReport, error)
	PlaceOrder(ctx context.Context, cmd orders.PlaceOrderCommand) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd orders.UpdateStatusCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (orders.OrderDetails, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	ListUserOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	DailyRevenue(ctx context.Context) ([]domain.DailyRevenue, error)
}

// CatalogService — операции каталога, которые использует API.
type CatalogService interface {
	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, limit int) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	ArchiveProduct(ctx context.Context, id string) error
	AddReview(ctx context.Context, review domain.Review) (domain.Review, error)
	ListReviews(ctx context.Context, productID string) ([]domain.Review, error)
}

// Config задаёт поведение API.
type Config struct {
	Logger  *log.Entry
	Metrics *metrics.HTTPMetrics
	// ExposeErrorDetails добавляет текст внутренней ошибки в поле details ответа.
	ExposeErrorDetails bool
	// RateLimit — запросов в секунду с одного IP; 0 отключает ограничение.
	RateLimit      float64
	RateBurst      int
	IdempotencyTTL time.Duration
}

// Handler обслуживает HTTP маршруты заказов и каталога.
type Handler struct {
	orders         OrderService
	catalog        CatalogService
	idempotency    domain.IdempotencyRepository
	logger         *log.Entry
	exposeDetails  bool
	idempotencyTTL time.Duration
	now            func() time.Time
}

// NewHandler создаёт обработчики. idempotency может быть nil: тогда Idempotency-Key игнорируется.
func NewHandler(orders OrderService, catalog CatalogService, idempotency domain.IdempotencyRepository, cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	return &Handler{
		orders:         orders,
		catalog:        catalog,
		idempotency:    idempotency,
		logger:         logger,
		exposeDetails:  cfg.ExposeErrorDetails,
		idempotencyTTL: ttl,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes подключает маршруты к router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	ordersGroup := router.Group("/orders", RequireUser())
	{
		ordersGroup.POST("", h.PlaceOrder)
		ordersGroup.GET("", RequireAdmin(), h.ListOrders)
		ordersGroup.GET("/revenue", RequireAdmin(), h.Revenue)
		ordersGroup.GET("/:id", h.GetOrder)
		ordersGroup.PUT("/:id/status", RequireAdmin(), h.UpdateStatus)
	}

	router.GET("/users/me/orders", RequireUser(), h.MyOrders)

	products := router.Group("/products")
	{
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProduct)
		products.POST("", RequireUser(), RequireAdmin(), h.CreateProduct)
		products.PUT("/:id", RequireUser(), RequireAdmin(), h.UpdateProduct)
		products.DELETE("/:id", RequireUser(), RequireAdmin(), h.ArchiveProduct)
		products.GET("/:id/reviews", h.ListReviews)
		products.POST("/:id/reviews", RequireUser(), h.AddReview)
		products.POST("/check-stock", h.CheckStock)
	}
}

// NewRouter собирает gin.Engine со всеми middleware и маршрутами.
func NewRouter(h *Handler, cfg Config) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(
		gin.Recovery(),
		RequestLogger(h.logger),
		Instrument(cfg.Metrics),
		RateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst, cfg.Metrics),
	)
	h.RegisterRoutes(router)
	return router
}
