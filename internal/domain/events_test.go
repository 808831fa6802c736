package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewOrderEventMessage(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	order := Order{
		ID:     "order-7",
		UserID: "user-3",
		Status: OrderStatusCancelled,
		Items:  []OrderItem{{ProductID: "p-1", Quantity: 3}},
		Totals: Totals{TotalPriceMinor: 1500},
	}

	msg, err := NewOrderEventMessage(EventOrderCancelled, order, OrderStatusProcessing, at)
	if err != nil {
		t.Fatalf("NewOrderEventMessage failed: %v", err)
	}
	if msg.AggregateType != AggregateOrder || msg.AggregateID != "order-7" || msg.EventType != EventOrderCancelled {
		t.Fatalf("unexpected envelope: %+v", msg)
	}

	var event OrderEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if event.PreviousStatus != "processing" || event.Status != "cancelled" {
		t.Fatalf("unexpected statuses: %+v", event)
	}
	if len(event.Items) != 1 || event.Items[0].Quantity != 3 {
		t.Fatalf("unexpected items: %+v", event.Items)
	}
	if !event.Timestamp.Equal(at) {
		t.Fatalf("unexpected timestamp: %s", event.Timestamp)
	}
}
