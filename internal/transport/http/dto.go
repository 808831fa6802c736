package httpapi

import (
	"math"
	"strings"
	"time"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/service/orders"
)

// Цены в JSON передаются в валюте (499.99), внутри сервиса хранятся в центах.
func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinor(minor int64) float64 {
	return float64(minor) / 100
}

// lineItemRequest принимает ссылку на товар в двух формах: productId или _id.
type lineItemRequest struct {
	ID        string  `json:"_id"`
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int32   `json:"quantity"`
	Image     string  `json:"image"`
}

// reference нормализует ссылку на товар: productId приоритетнее _id.
func (l lineItemRequest) reference() string {
	if id := strings.TrimSpace(l.ProductID); id != "" {
		return id
	}
	return strings.TrimSpace(l.ID)
}

type shippingPayload struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

type placeOrderRequest struct {
	Items           []lineItemRequest `json:"items"`
	ShippingInfo    *shippingPayload  `json:"shippingInfo"`
	PaymentMethod   string            `json:"paymentMethod"`
	ItemsPrice      *float64          `json:"itemsPrice"`
	ShippingPrice   *float64          `json:"shippingPrice"`
	TotalPrice      *float64          `json:"totalPrice"`
	StripePaymentID string            `json:"stripePaymentId"`
}

func (r placeOrderRequest) command(userID, idempotencyKey string) orders.PlaceOrderCommand {
	cmd := orders.PlaceOrderCommand{
		UserID:          userID,
		Items:           make([]orders.LineItem, 0, len(r.Items)),
		PaymentMethod:   domain.PaymentMethod(strings.TrimSpace(r.PaymentMethod)),
		StripePaymentID: strings.TrimSpace(r.StripePaymentID),
		IdempotencyKey:  idempotencyKey,
	}
	for _, item := range r.Items {
		cmd.Items = append(cmd.Items, orders.LineItem{
			ProductID:  item.reference(),
			Quantity:   item.Quantity,
			Name:       item.Name,
			Image:      item.Image,
			PriceMinor: toMinor(item.Price),
		})
	}
	if s := r.ShippingInfo; s != nil {
		cmd.Shipping = &domain.ShippingInfo{
			Name:       s.Name,
			Address:    s.Address,
			City:       s.City,
			PostalCode: s.PostalCode,
			Country:    s.Country,
			Phone:      s.Phone,
			Email:      s.Email,
		}
	}
	if r.ItemsPrice != nil && r.ShippingPrice != nil && r.TotalPrice != nil {
		cmd.ClientTotals = &domain.Totals{
			ItemsPriceMinor:    toMinor(*r.ItemsPrice),
			ShippingPriceMinor: toMinor(*r.ShippingPrice),
			TotalPriceMinor:    toMinor(*r.TotalPrice),
		}
	}
	return cmd
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type stockCheckRequest struct {
	Items []lineItemRequest `json:"items"`
}

func (r stockCheckRequest) requests() []domain.StockRequest {
	out := make([]domain.StockRequest, 0, len(r.Items))
	for _, item := range r.Items {
		out = append(out, domain.StockRequest{ProductID: item.reference(), Quantity: item.Quantity})
	}
	return out
}

type createProductRequest struct {
	Name         string            `json:"name"`
	Brand        string            `json:"brand"`
	Description  string            `json:"description"`
	Image        string            `json:"image"`
	Price        float64           `json:"price"`
	Quantity     int32             `json:"quantity"`
	Specs        map[string]string `json:"specs"`
	IsNewArrival bool              `json:"isNewArrival"`
	IsTopSelling bool              `json:"isTopSelling"`
}

func (r createProductRequest) product() domain.Product {
	return domain.Product{
		Name:         r.Name,
		Brand:        r.Brand,
		Description:  r.Description,
		Image:        r.Image,
		PriceMinor:   toMinor(r.Price),
		Quantity:     r.Quantity,
		Specs:        r.Specs,
		IsNewArrival: r.IsNewArrival,
		IsTopSelling: r.IsTopSelling,
	}
}

// updateProductRequest не содержит quantity: остаток через API каталога не меняется.
type updateProductRequest struct {
	Name         string            `json:"name"`
	Brand        string            `json:"brand"`
	Description  string            `json:"description"`
	Image        string            `json:"image"`
	Price        float64           `json:"price"`
	Specs        map[string]string `json:"specs"`
	IsNewArrival bool              `json:"isNewArrival"`
	IsTopSelling bool              `json:"isTopSelling"`
}

func (r updateProductRequest) product(id string) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         r.Name,
		Brand:        r.Brand,
		Description:  r.Description,
		Image:        r.Image,
		PriceMinor:   toMinor(r.Price),
		Specs:        r.Specs,
		IsNewArrival: r.IsNewArrival,
		IsTopSelling: r.IsTopSelling,
	}
}

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type reviewResponse struct {
	ID        string    `json:"_id"`
	ProductID string    `json:"productId"`
	User      string    `json:"user"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

func newReviewResponse(r domain.Review) reviewResponse {
	return reviewResponse{
		ID:        r.ID,
		ProductID: r.ProductID,
		User:      r.UserID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Image     string  `json:"image"`
	Price     float64 `json:"price"`
	Quantity  int32   `json:"quantity"`
}

type paymentResponse struct {
	PaymentMethod   string `json:"paymentMethod"`
	Status          string `json:"status"`
	StripePaymentID string `json:"stripePaymentId,omitempty"`
}

type timelineResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurredAt"`
}

type orderResponse struct {
	ID            string              `json:"_id"`
	User          string              `json:"user"`
	Items         []orderItemResponse `json:"items"`
	ShippingInfo  shippingPayload     `json:"shippingInfo"`
	PaymentInfo   paymentResponse     `json:"paymentInfo"`
	ItemsPrice    float64             `json:"itemsPrice"`
	ShippingPrice float64             `json:"shippingPrice"`
	TotalPrice    float64             `json:"totalPrice"`
	OrderStatus   string              `json:"orderStatus"`
	DeliveredAt   *time.Time          `json:"deliveredAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	Timeline      []timelineResponse  `json:"timeline,omitempty"`
}

func newOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Price:     fromMinor(item.PriceMinor),
			Quantity:  item.Quantity,
		})
	}
	return orderResponse{
		ID:    order.ID,
		User:  order.UserID,
		Items: items,
		ShippingInfo: shippingPayload{
			Name:       order.Shipping.Name,
			Address:    order.Shipping.Address,
			City:       order.Shipping.City,
			PostalCode: order.Shipping.PostalCode,
			Country:    order.Shipping.Country,
			Phone:      order.Shipping.Phone,
			Email:      order.Shipping.Email,
		},
		PaymentInfo: paymentResponse{
			PaymentMethod:   string(order.Payment.Method),
			Status:          string(order.Payment.Status),
			StripePaymentID: order.Payment.StripePaymentID,
		},
		ItemsPrice:    fromMinor(order.ItemsPriceMinor),
		ShippingPrice: fromMinor(order.ShippingPriceMinor),
		TotalPrice:    fromMinor(order.TotalPriceMinor),
		OrderStatus:   string(order.Status),
		DeliveredAt:   order.DeliveredAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func newOrderListResponse(list []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, order := range list {
		out = append(out, newOrderResponse(order))
	}
	return out
}

type orderEnvelope struct {
	Success bool          `json:"success"`
	Order   orderResponse `json:"order"`
}

type stockResultResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Requested int32  `json:"requested"`
	OnHand    int32  `json:"onHand"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type stockCheckResponse struct {
	Success         bool                  `json:"success"`
	InStock         bool                  `json:"inStock"`
	Results         []stockResultResponse `json:"results"`
	OutOfStockItems []stockResultResponse `json:"outOfStockItems"`
}

func newStockResults(results []domain.StockResult) []stockResultResponse {
	out := make([]stockResultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, stockResultResponse{
			ProductID: r.ProductID,
			Name:      r.Name,
			Requested: r.Requested,
			OnHand:    r.OnHand,
			Available: r.Available,
			Reason:    r.Reason,
		})
	}
	return out
}

type revenueResponse struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

type productResponse struct {
	ID           string            `json:"_id"`
	Name         string            `json:"name"`
	Brand        string            `json:"brand"`
	Description  string            `json:"description"`
	Image        string            `json:"image"`
	Price        float64           `json:"price"`
	Quantity     int32             `json:"quantity"`
	Specs        map[string]string `json:"specs,omitempty"`
	IsNewArrival bool              `json:"isNewArrival"`
	IsTopSelling bool              `json:"isTopSelling"`
	CreatedAt    time.Time         `json:"createdAt"`
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:           p.ID,
		Name:         p.Name,
		Brand:        p.Brand,
		Description:  p.Description,
		Image:        p.Image,
		Price:        fromMinor(p.PriceMinor),
		Quantity:     p.Quantity,
		Specs:        p.Specs,
		IsNewArrival: p.IsNewArrival,
		IsTopSelling: p.IsTopSelling,
		CreatedAt:    p.CreatedAt,
	}
}
