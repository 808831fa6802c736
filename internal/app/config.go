package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/messaging/kafka"
	"github.com/sahaalaf/sashop/internal/service/orders"
)

// EnvPrefix — префикс переменных окружения: SASHOP_HTTP_ADDR, SASHOP_STORAGE_DRIVER и т.д.
const EnvPrefix = "SASHOP"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	IdempotencyDriverMemory   = "memory"
	IdempotencyDriverPostgres = "postgres"
	IdempotencyDriverRedis    = "redis"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR"`
	GRPCAddr    string `envconfig:"GRPC_ADDR"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE"`

	// IdempotencyDriver пустой — ключи хранятся там же, где заказы.
	IdempotencyDriver           string        `envconfig:"IDEMPOTENCY_DRIVER"`
	IdempotencyTTL              time.Duration `envconfig:"IDEMPOTENCY_TTL"`
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE"`
	RedisAddr                   string        `envconfig:"REDIS_ADDR"`
	RedisPassword               string        `envconfig:"REDIS_PASSWORD"`
	RedisDB                     int           `envconfig:"REDIS_DB"`

	// KafkaBrokers — список через запятую; пустой список включает публикацию событий в лог.
	KafkaBrokers  string `envconfig:"KAFKA_BROKERS"`
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID"`
	KafkaTopic    string `envconfig:"KAFKA_TOPIC"`
	KafkaDLQTopic string `envconfig:"KAFKA_DLQ_TOPIC"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY"`

	ShippingPriceMinor int64  `envconfig:"SHIPPING_PRICE_MINOR"`
	OrderTransitions   string `envconfig:"ORDER_TRANSITIONS"`

	ExposeErrorDetails bool    `envconfig:"EXPOSE_ERROR_DETAILS"`
	RateLimitRPS       float64 `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst     int     `envconfig:"RATE_LIMIT_BURST"`

	LogLevel        string        `envconfig:"LOG_LEVEL"`
	LogFormat       string        `envconfig:"LOG_FORMAT"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		IdempotencyTTL:              domain.DefaultIdempotencyTTL,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		RedisAddr:                   "localhost:6379",

		KafkaClientID: "sashop",
		KafkaTopic:    kafka.TopicOrderEvents,
		KafkaDLQTopic: kafka.TopicDeadLetterQueue,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		ShippingPriceMinor: orders.DefaultShippingPriceMinor,
		OrderTransitions:   string(domain.TransitionPolicyLenient),

		RateLimitRPS:   50,
		RateLimitBurst: 100,

		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig читает .env (если он есть) и переменные окружения поверх DefaultConfig.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("SASHOP_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.idempotencyDriver() {
	case IdempotencyDriverMemory:
	case IdempotencyDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("SASHOP_POSTGRES_DSN is required for postgres idempotency keys"))
		}
	case IdempotencyDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("SASHOP_REDIS_ADDR is required for redis idempotency keys"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported idempotency driver %q", c.idempotencyDriver()))
	}

	if _, err := domain.ParseTransitionPolicy(c.OrderTransitions); err != nil {
		errs = append(errs, err)
	}
	if c.ShippingPriceMinor < 0 {
		errs = append(errs, errors.New("shipping price must not be negative"))
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval, batch size and max attempts must be positive"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) idempotencyDriver() string {
	if c.IdempotencyDriver == "" {
		return c.StorageDriver
	}
	return c.IdempotencyDriver
}

func (c Config) kafkaBrokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// ConfigureLogging настраивает стандартный logrus logger.
func ConfigureLogging(cfg Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
