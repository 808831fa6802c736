package domain

import (
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа в магазине.
type OrderStatus string

const (
	// OrderStatusProcessing — заказ создан, товар списан со склада.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён, остатки возвращены на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// OrderItem — снимок позиции каталога на момент покупки.
type OrderItem struct {
	ProductID string
	Name      string
	Image     string
	// PriceMinor — цена за единицу в центах, взятая из каталога внутри транзакции.
	PriceMinor int64
	Quantity   int32
}

// ShippingInfo — адрес и контакты получателя, все поля обязательны.
type ShippingInfo struct {
	Name       string
	Address    string
	City       string
	PostalCode string
	Country    string
	Phone      string
	Email      string
}

// Validate проверяет заполненность всех полей доставки.
func (s *ShippingInfo) Validate() error {
	if s == nil {
		return ErrShippingRequired
	}
	for _, field := range []string{s.Name, s.Address, s.City, s.PostalCode, s.Country, s.Phone, s.Email} {
		if strings.TrimSpace(field) == "" {
			return ErrShippingIncomplete
		}
	}
	return nil
}

// Totals — суммы заказа в центах.
type Totals struct {
	ItemsPriceMinor    int64
	ShippingPriceMinor int64
	TotalPriceMinor    int64
}

// ComputeTotals считает сумму позиций и итог с доставкой.
func ComputeTotals(items []OrderItem, shippingPriceMinor int64) Totals {
	var itemsSum int64
	for _, item := range items {
		itemsSum += item.PriceMinor * int64(item.Quantity)
	}
	return Totals{
		ItemsPriceMinor:    itemsSum,
		ShippingPriceMinor: shippingPriceMinor,
		TotalPriceMinor:    itemsSum + shippingPriceMinor,
	}
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID       string
	UserID   string
	Items    []OrderItem
	Shipping ShippingInfo
	Payment  PaymentInfo
	Totals
	Status         OrderStatus
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeliveredAt    *time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if err := o.Shipping.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !o.Payment.Method.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	// Итог должен совпадать с пересчётом по позициям.
	if ComputeTotals(o.Items, o.ShippingPriceMinor) != o.Totals {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Clone возвращает копию заказа без общих слайсов и указателей.
func (o Order) Clone() Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	if o.DeliveredAt != nil {
		delivered := *o.DeliveredAt
		o.DeliveredAt = &delivered
	}
	return o
}

// DailyRevenue — выручка за календарный день (UTC).
type DailyRevenue struct {
	Day        string
	TotalMinor int64
}
