package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHTTPMetricsWithRegisterer(reg)

	metrics.ObserveRequest("POST", "/orders", 201, 15*time.Millisecond)
	metrics.ObserveRequest("POST", "/orders", 201, 5*time.Millisecond)
	metrics.ObserveRequest("GET", "", 404, time.Millisecond)
	metrics.RecordRateLimited()

	if got := counterValue(t, metrics.requests.WithLabelValues("POST", "/orders", "201")); got != 2 {
		t.Errorf("expected 2 created requests, got %v", got)
	}
	if got := counterValue(t, metrics.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("expected unmatched route label, got %v", got)
	}
	if got := counterValue(t, metrics.limited); got != 1 {
		t.Errorf("expected 1 limited request, got %v", got)
	}

	again := NewHTTPMetricsWithRegisterer(reg)
	if again.requests != metrics.requests {
		t.Fatal("re-registration should reuse existing collectors")
	}
}

func TestHTTPMetrics_NilReceiver(t *testing.T) {
	var metrics *HTTPMetrics

	metrics.ObserveRequest("GET", "/products", 200, time.Millisecond)
	metrics.RecordRateLimited()
}
