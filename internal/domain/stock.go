package domain

// StockRequest — запрос проверки остатка по одной позиции.
type StockRequest struct {
	ProductID string
	Quantity  int32
}

// StockResult — результат проверки одной позиции.
type StockResult struct {
	ProductID string
	Name      string
	Requested int32
	OnHand    int32
	Available bool
	// Reason заполняется, если товар не найден.
	Reason string
}

// StockReport — итог предварительной проверки корзины.
//
// Отчёт носит рекомендательный характер: при оформлении заказа остатки
// проверяются заново внутри транзакции.
type StockReport struct {
	InStock    bool
	Results    []StockResult
	OutOfStock []StockResult
}

// StockReasonNotFound — причина недоступности для отсутствующего товара.
const StockReasonNotFound = "not found"
