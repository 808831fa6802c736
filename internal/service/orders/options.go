package orders

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/metrics"
)

// DefaultShippingPriceMinor — фиксированная стоимость доставки в центах.
const DefaultShippingPriceMinor int64 = 500

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики заказов; без опции сервис метрики не пишет.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithShippingPrice задаёт стоимость доставки, добавляемую к каждому заказу.
func WithShippingPrice(priceMinor int64) Option {
	return func(s *Service) {
		if priceMinor >= 0 {
			s.shippingPriceMinor = priceMinor
		}
	}
}

// WithTransitionPolicy выбирает политику смены статусов.
func WithTransitionPolicy(policy domain.TransitionPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}
