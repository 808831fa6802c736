package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	relayPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sashop_outbox_publish_total",
		Help: "Order events relayed from the outbox grouped by result.",
	}, []string{"result"})
	relayPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sashop_outbox_pending_records",
		Help: "Order events waiting in the outbox.",
	})
	relayOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sashop_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending order event.",
	})
)

// Config задаёт параметры relay-воркера.
type Config struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*Config)

func WithLogger(logger *log.Entry) Option {
	return func(cfg *Config) { cfg.Logger = logger }
}

// WithDLQPublisher задаёт получателя событий, которые не удалось опубликовать.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(cfg *Config) { cfg.DLQPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(cfg *Config) { cfg.PollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(cfg *Config) { cfg.BatchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(maxAttempts int) Option {
	return func(cfg *Config) { cfg.MaxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт первую паузу экспоненциального backoff; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(cfg *Config) { cfg.RetryBaseDelay = delay }
}

// Worker переносит события заказов из outbox во внешний publisher.
//
// Событие помечается sent только после успешной публикации, поэтому
// получатели должны быть готовы к повторной доставке.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       Config
	logger    *log.Entry
}

// NewWorker создаёт relay-воркер.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	cfg := Config{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&cfg)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBaseDelay < 0 {
		cfg.RetryBaseDelay = 0
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-relay")
	}

	return &Worker{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run опрашивает outbox до отмены ctx. Отмена не считается ошибкой.
func (w *Worker) Run(ctx context.Context) error {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox relay disabled: repository or publisher is not configured")
		return nil
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.WithError(err).Warn("outbox relay cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну порцию pending-событий и возвращает число отправленных.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer w.refreshBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("pull pending: %w", err)
	}

	sent := 0
	for _, msg := range batch {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		entry := w.logger.WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"event_type": msg.EventType,
			"order_id":   msg.AggregateID,
		})

		publishErr := w.publish(ctx, msg)
		if errors.Is(publishErr, context.Canceled) {
			return sent, publishErr
		}
		if publishErr != nil {
			entry.WithError(publishErr).Error("order event was not published")
			relayPublishTotal.WithLabelValues("failed").Inc()
			w.deadLetter(entry, msg, publishErr)
			if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
				entry.WithError(err).Warn("failed to mark outbox message as failed")
			}
			continue
		}

		relayPublishTotal.WithLabelValues("sent").Inc()
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox message as sent")
			continue
		}
		sent++
	}

	return sent, nil
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if lastErr = w.publisher.Publish(msg); lastErr == nil {
			return nil
		}
		relayPublishTotal.WithLabelValues("retry").Inc()

		if attempt == w.cfg.MaxAttempts {
			break
		}
		delay := w.backoff(attempt)
		if delay == 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("publish after %d attempts: %w", w.cfg.MaxAttempts, lastErr)
}

// backoff удваивает базовую паузу на каждой попытке с защитой от переполнения.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.cfg.RetryBaseDelay
	if delay <= 0 {
		return 0
	}
	const ceiling = time.Duration(1<<63 - 1)
	for i := 1; i < attempt; i++ {
		if delay > ceiling/2 {
			return ceiling
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to read outbox backlog")
		return
	}

	relayPending.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		relayOldestPendingAge.Set(0)
		return
	}
	relayOldestPendingAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}

// dlqEnvelope — тело сообщения в DLQ: исходное событие плюс причина отказа.
type dlqEnvelope struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

func (w *Worker) deadLetter(entry *log.Entry, msg domain.OutboxMessage, cause error) {
	if w.cfg.DLQPublisher == nil {
		return
	}

	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(msg.Payload))
	}
	body, err := json.Marshal(dlqEnvelope{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		Error:         cause.Error(),
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		entry.WithError(err).Warn("failed to encode dlq envelope")
		return
	}

	dead := msg
	dead.Payload = body
	if err := w.cfg.DLQPublisher.Publish(dead); err != nil {
		relayPublishTotal.WithLabelValues("dlq_failed").Inc()
		entry.WithError(err).Warn("failed to publish order event to dlq")
		return
	}
	relayPublishTotal.WithLabelValues("dlq").Inc()
}
