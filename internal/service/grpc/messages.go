package grpcsvc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/service/orders"
)

// Суммы в gRPC передаются в центах, в отличие от HTTP API.

type lineItemMessage struct {
	ID        string `json:"_id,omitempty"`
	ProductID string `json:"productId,omitempty"`
	Quantity  int32  `json:"quantity"`
}

func (l lineItemMessage) reference() string {
	if id := strings.TrimSpace(l.ProductID); id != "" {
		return id
	}
	return strings.TrimSpace(l.ID)
}

type shippingMessage struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

type createOrderMessage struct {
	UserID          string            `json:"userId"`
	Items           []lineItemMessage `json:"items"`
	ShippingInfo    *shippingMessage  `json:"shippingInfo"`
	PaymentMethod   string            `json:"paymentMethod"`
	StripePaymentID string            `json:"stripePaymentId"`
}

func (m createOrderMessage) command(idempotencyKey string) orders.PlaceOrderCommand {
	cmd := orders.PlaceOrderCommand{
		UserID:          strings.TrimSpace(m.UserID),
		Items:           make([]orders.LineItem, 0, len(m.Items)),
		PaymentMethod:   domain.PaymentMethod(strings.TrimSpace(m.PaymentMethod)),
		StripePaymentID: strings.TrimSpace(m.StripePaymentID),
		IdempotencyKey:  idempotencyKey,
	}
	for _, item := range m.Items {
		cmd.Items = append(cmd.Items, orders.LineItem{ProductID: item.reference(), Quantity: item.Quantity})
	}
	if s := m.ShippingInfo; s != nil {
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
	return cmd
}

type updateStatusMessage struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

type checkStockMessage struct {
	Items []lineItemMessage `json:"items"`
}

type getOrderMessage struct {
	OrderID string `json:"orderId"`
}

type orderItemMessage struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
	PriceMinor int64  `json:"priceMinor"`
	Quantity   int32  `json:"quantity"`
}

type orderMessage struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"userId"`
	Items              []orderItemMessage `json:"items"`
	ShippingInfo       shippingMessage    `json:"shippingInfo"`
	PaymentMethod      string             `json:"paymentMethod"`
	PaymentStatus      string             `json:"paymentStatus"`
	ItemsPriceMinor    int64              `json:"itemsPriceMinor"`
	ShippingPriceMinor int64              `json:"shippingPriceMinor"`
	TotalPriceMinor    int64              `json:"totalPriceMinor"`
	Status             string             `json:"status"`
	DeliveredAt        string             `json:"deliveredAt,omitempty"`
	CreatedAt          string             `json:"createdAt"`
	UpdatedAt          string             `json:"updatedAt"`
}

type timelineMessage struct {
	Type     string `json:"type"`
	Reason   string `json:"reason,omitempty"`
	UnixTime int64  `json:"unixTime"`
}

type stockResultMessage struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Requested int32  `json:"requested"`
	OnHand    int32  `json:"onHand"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

func toOrderMessage(order domain.Order) orderMessage {
	items := make([]orderItemMessage, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemMessage{
			ProductID:  item.ProductID,
			Name:       item.Name,
			Image:      item.Image,
			PriceMinor: item.PriceMinor,
			Quantity:   item.Quantity,
		})
	}
	msg := orderMessage{
		ID:     order.ID,
		UserID: order.UserID,
		Items:  items,
		ShippingInfo: shippingMessage{
			Name:       order.Shipping.Name,
			Address:    order.Shipping.Address,
			City:       order.Shipping.City,
			PostalCode: order.Shipping.PostalCode,
			Country:    order.Shipping.Country,
			Phone:      order.Shipping.Phone,
			Email:      order.Shipping.Email,
		},
		PaymentMethod:      string(order.Payment.Method),
		PaymentStatus:      string(order.Payment.Status),
		ItemsPriceMinor:    order.ItemsPriceMinor,
		ShippingPriceMinor: order.ShippingPriceMinor,
		TotalPriceMinor:    order.TotalPriceMinor,
		Status:             string(order.Status),
		CreatedAt:          order.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:          order.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if order.DeliveredAt != nil {
		msg.DeliveredAt = order.DeliveredAt.UTC().Format(time.RFC3339Nano)
	}
	return msg
}

func toStockResults(results []domain.StockResult) []stockResultMessage {
	out := make([]stockResultMessage, 0, len(results))
	for _, r := range results {
		out = append(out, stockResultMessage(r))
	}
	return out
}

// decodeStruct переносит Struct в типизированное сообщение через JSON.
func decodeStruct(in *structpb.Struct, out any) error {
	if in == nil {
		return fmt.Errorf("request is required")
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func encodeStruct(in any) (*structpb.Struct, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}
