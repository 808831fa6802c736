package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestNewOrderMetricsWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOrderMetricsWithRegisterer(reg)

	if metrics.ordersPlaced == nil || metrics.ordersRejected == nil || metrics.transitions == nil {
		t.Fatal("order counters should not be nil")
	}
	if metrics.unitsDebited == nil || metrics.unitsCredited == nil {
		t.Fatal("stock counters should not be nil")
	}
	if metrics.txDuration == nil || metrics.stockChecks == nil || metrics.clientTotalMismatch == nil {
		t.Fatal("auxiliary metrics should not be nil")
	}

	again := NewOrderMetricsWithRegisterer(reg)
	if again.ordersPlaced != metrics.ordersPlaced {
		t.Fatal("re-registration should reuse existing collectors")
	}
}

func TestOrderMetrics_RecordPlacedAndRestored(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOrderPlaced(3)
	metrics.RecordOrderPlaced(2)
	metrics.RecordStockRestored(2)

	if got := counterValue(t, metrics.ordersPlaced); got != 2 {
		t.Errorf("expected 2 orders placed, got %v", got)
	}
	if got := counterValue(t, metrics.unitsDebited); got != 5 {
		t.Errorf("expected 5 units debited, got %v", got)
	}
	if got := counterValue(t, metrics.unitsCredited); got != 2 {
		t.Errorf("expected 2 units credited, got %v", got)
	}
}

func TestOrderMetrics_LabelledCounters(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOrderRejected(RejectReasonInsufficient)
	metrics.RecordOrderRejected(RejectReasonInsufficient)
	metrics.RecordOrderRejected(RejectReasonValidation)
	metrics.RecordStatusTransition("processing", "cancelled")
	metrics.RecordStockCheck(true)
	metrics.RecordStockCheck(false)
	metrics.RecordClientTotalMismatch()

	if got := counterValue(t, metrics.ordersRejected.WithLabelValues(RejectReasonInsufficient)); got != 2 {
		t.Errorf("expected 2 insufficient rejections, got %v", got)
	}
	if got := counterValue(t, metrics.ordersRejected.WithLabelValues(RejectReasonValidation)); got != 1 {
		t.Errorf("expected 1 validation rejection, got %v", got)
	}
	if got := counterValue(t, metrics.transitions.WithLabelValues("processing", "cancelled")); got != 1 {
		t.Errorf("expected 1 transition, got %v", got)
	}
	if got := counterValue(t, metrics.stockChecks.WithLabelValues("out_of_stock")); got != 1 {
		t.Errorf("expected 1 out of stock check, got %v", got)
	}
	if got := counterValue(t, metrics.clientTotalMismatch); got != 1 {
		t.Errorf("expected 1 mismatch, got %v", got)
	}
}

func TestOrderMetrics_TxDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOrderMetricsWithRegisterer(reg)

	metrics.RecordTxDuration("place_order", 20*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "sashop_order_tx_duration_seconds" {
			continue
		}
		if got := family.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
			t.Fatalf("expected 1 sample, got %d", got)
		}
		return
	}
	t.Fatal("tx duration histogram not gathered")
}

func TestOrderMetrics_NilReceiver(t *testing.T) {
	var metrics *OrderMetrics

	metrics.RecordOrderPlaced(1)
	metrics.RecordOrderRejected(RejectReasonInternal)
	metrics.RecordStatusTransition("a", "b")
	metrics.RecordStockRestored(1)
	metrics.RecordTxDuration("x", time.Second)
	metrics.RecordStockCheck(true)
	metrics.RecordClientTotalMismatch()
}
