package domain

import (
	"encoding/json"
	"time"
)

// Типы событий заказа, публикуемых через outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"

	AggregateOrder = "order"
)

// OrderEventItem — позиция заказа в событии.
type OrderEventItem struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

// OrderEvent — полезная нагрузка события заказа.
type OrderEvent struct {
	EventType       string           `json:"event_type"`
	OrderID         string           `json:"order_id"`
	UserID          string           `json:"user_id"`
	Status          string           `json:"status"`
	PreviousStatus  string           `json:"previous_status,omitempty"`
	TotalPriceMinor int64            `json:"total_price_minor"`
	Items           []OrderEventItem `json:"items,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// NewOrderEventMessage собирает outbox-сообщение по заказу.
func NewOrderEventMessage(eventType string, order Order, previous OrderStatus, at time.Time) (OutboxMessage, error) {
	items := make([]OrderEventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderEventItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	payload, err := json.Marshal(OrderEvent{
		EventType:       eventType,
		OrderID:         order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		PreviousStatus:  string(previous),
		TotalPriceMinor: order.TotalPriceMinor,
		Items:           items,
		Timestamp:       at.UTC(),
	})
	if err != nil {
		return OutboxMessage{}, err
	}

	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
