package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отказа в оформлении заказа.
const (
	RejectReasonValidation   = "validation"
	RejectReasonNotFound     = "product_not_found"
	RejectReasonInsufficient = "insufficient_stock"
	RejectReasonInternal     = "internal"
)

// OrderMetrics содержит метрики оформления заказов и движения остатков.
//
// Все методы безопасны для nil-получателя: сервисы без метрик просто их не пишут.
type OrderMetrics struct {
	ordersPlaced   prometheus.Counter
	ordersRejected *prometheus.CounterVec
	transitions    *prometheus.CounterVec

	unitsDebited  prometheus.Counter
	unitsCredited prometheus.Counter

	txDuration *prometheus.HistogramVec

	stockChecks         *prometheus.CounterVec
	clientTotalMismatch prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersPlaced: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sashop_orders_placed_total",
			Help: "Total number of orders committed together with their stock debit",
		})),
		ordersRejected: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sashop_orders_rejected_total",
			Help: "Total number of order placements rejected, by reason",
		}, []string{"reason"})),
		transitions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sashop_order_status_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"from", "to"})),
		unitsDebited: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sashop_stock_units_debited_total",
			Help: "Total number of stock units debited by placed orders",
		})),
		unitsCredited: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sashop_stock_units_credited_total",
			Help: "Total number of stock units restored by cancelled orders",
		})),
		txDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sashop_order_tx_duration_seconds",
			Help:    "Duration of order transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"})),
		stockChecks: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sashop_stock_checks_total",
			Help: "Total number of advisory stock checks, by outcome",
		}, []string{"result"})),
		clientTotalMismatch: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sashop_order_client_total_mismatch_total",
			Help: "Total number of orders whose client-supplied totals differ from server totals",
		})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %T already registered with unexpected type", collector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %T: %v", collector, err))
	}
	return collector
}

// RecordOrderPlaced учитывает зафиксированный заказ и списанные единицы.
func (m *OrderMetrics) RecordOrderPlaced(units int) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	m.unitsDebited.Add(float64(units))
}

// RecordOrderRejected увеличивает счётчик отказов с причиной reason.
func (m *OrderMetrics) RecordOrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// RecordStatusTransition учитывает применённую смену статуса.
func (m *OrderMetrics) RecordStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordStockRestored учитывает единицы, возвращённые на склад при отмене.
func (m *OrderMetrics) RecordStockRestored(units int) {
	if m == nil {
		return
	}
	m.unitsCredited.Add(float64(units))
}

// RecordTxDuration записывает длительность транзакции operation.
func (m *OrderMetrics) RecordTxDuration(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *OrderMetrics) RecordStockCheck(inStock bool) {
	if m == nil {
		return
	}
	result := "in_stock"
	if !inStock {
		result = "out_of_stock"
	}
	m.stockChecks.WithLabelValues(result).Inc()
}

func (m *OrderMetrics) RecordClientTotalMismatch() {
	if m == nil {
		return
	}
	m.clientTotalMismatch.Inc()
}
