package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics — метрики REST API.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	limited  prometheus.Counter
}

// NewHTTPMetricsWithRegisterer регистрирует метрики API; nil означает DefaultRegisterer.
func NewHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &HTTPMetrics{
		requests: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sashop_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"})),
		duration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sashop_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})),
		limited: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sashop_http_rate_limited_total",
			Help: "Total number of HTTP requests rejected by the rate limiter",
		})),
	}
}

// ObserveRequest учитывает завершённый запрос. route — шаблон маршрута, а не путь.
func (m *HTTPMetrics) ObserveRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *HTTPMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.limited.Inc()
}
