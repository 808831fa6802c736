package domain

// PaymentMethod — способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodStripe — оплата картой через Stripe, подтверждается до создания заказа.
	PaymentMethodStripe PaymentMethod = "stripe"
	// PaymentMethodCOD — оплата наличными при получении.
	PaymentMethodCOD PaymentMethod = "cod"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodStripe || m == PaymentMethodCOD
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentInfo — платёжная часть заказа.
type PaymentInfo struct {
	Method          PaymentMethod
	Status          PaymentStatus
	StripePaymentID string
}

// NewPaymentInfo выставляет статус по способу оплаты: карта уже оплачена, наличные ждут курьера.
func NewPaymentInfo(method PaymentMethod, stripePaymentID string) PaymentInfo {
	info := PaymentInfo{Method: method, Status: PaymentStatusPending}
	if method == PaymentMethodStripe {
		info.Status = PaymentStatusPaid
		info.StripePaymentID = stripePaymentID
	}
	return info
}
