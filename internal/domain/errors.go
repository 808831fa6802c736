package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора покупателя.
	ErrUserRequired = errors.New("user id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("items are required")
	// Ошибка позиции без ссылки на товар каталога.
	ErrItemProductRequired = errors.New("item product id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отсутствующих данных доставки.
	ErrShippingRequired = errors.New("shipping info is required")
	// Ошибка неполных данных доставки.
	ErrShippingIncomplete = errors.New("shipping info is incomplete")
	// Ошибка неподдерживаемого способа оплаты.
	ErrPaymentMethodInvalid = errors.New("invalid payment method")
	// Ошибка несоответствия итоговой суммы и суммы позиций.
	ErrAmountMismatch = errors.New("order total does not match items and shipping")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = errors.New("invalid status value")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists возвращается при повторной вставке заказа с тем же ID.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderTransitionNotAllowed запрещённый переход статуса.
	ErrOrderTransitionNotAllowed = errors.New("order status transition is not allowed")
	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductAlreadyExists возвращается при повторной вставке товара.
	ErrProductAlreadyExists = errors.New("product already exists")
	// Ошибка отсутствующего названия товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены товара.
	ErrProductPriceNegative = errors.New("product price must be non-negative")
	// Ошибка отрицательного остатка товара.
	ErrProductQtyNegative = errors.New("product quantity must be non-negative")
	// Оценка отзыва вне диапазона 1..5.
	ErrReviewRatingInvalid = errors.New("rating must be between 1 and 5")
	// Слишком короткий текст отзыва.
	ErrReviewCommentTooShort = errors.New("comment must be at least 10 characters")
	// ErrStockOverflow — возврат на склад превысил бы вместимость счётчика.
	ErrStockOverflow = errors.New("stock counter overflow")
	// ErrInsufficientStock — остатка не хватает для списания.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// InsufficientStockError описывает нехватку остатка по конкретному товару.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int32
	Requested int32
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s, available: %d", name, e.Available)
}

// Is позволяет сравнивать ошибку с ErrInsufficientStock через errors.Is.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ProductNotFoundError указывает, какой именно товар не найден.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

var validationErrors = []error{
	ErrUserRequired,
	ErrItemsRequired,
	ErrItemProductRequired,
	ErrItemQtyInvalid,
	ErrItemPriceInvalid,
	ErrShippingRequired,
	ErrShippingIncomplete,
	ErrPaymentMethodInvalid,
	ErrAmountMismatch,
	ErrOrderStatusInvalid,
	ErrProductNameRequired,
	ErrProductPriceNegative,
	ErrProductQtyNegative,
	ErrReviewRatingInvalid,
	ErrReviewCommentTooShort,
}

// IsValidation сообщает, что ошибка вызвана некорректными входными данными.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
