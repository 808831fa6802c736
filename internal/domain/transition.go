package domain

import (
	"fmt"
	"strings"
)

// TransitionPolicy определяет, какие смены статуса заказа допустимы.
type TransitionPolicy string

const (
	// TransitionPolicyLenient принимает любой из четырёх статусов как целевой.
	TransitionPolicyLenient TransitionPolicy = "lenient"
	// TransitionPolicyStrict разрешает только processing -> shipped -> delivered и отмену до доставки.
	TransitionPolicyStrict TransitionPolicy = "strict"
)

var strictTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

// ParseTransitionPolicy разбирает значение из конфигурации; пустая строка означает lenient.
func ParseTransitionPolicy(raw string) (TransitionPolicy, error) {
	switch TransitionPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TransitionPolicyLenient:
		return TransitionPolicyLenient, nil
	case TransitionPolicyStrict:
		return TransitionPolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown transition policy %q", raw)
	}
}

// CanTransition проверяет переход from -> to.
//
// Повтор текущего статуса всегда допустим и обрабатывается как no-op.
// Выход из cancelled запрещён в обеих политиках: остатки уже возвращены на склад.
func (p TransitionPolicy) CanTransition(from, to OrderStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from == OrderStatusCancelled {
		return false
	}
	if p != TransitionPolicyStrict {
		return true
	}
	for _, allowed := range strictTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
