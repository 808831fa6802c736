package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
	healthcheck "github.com/sahaalaf/sashop/internal/health"
	"github.com/sahaalaf/sashop/internal/storage/memory"
	"github.com/sahaalaf/sashop/internal/storage/postgres"
	"github.com/sahaalaf/sashop/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	uow             domain.UnitOfWork
	products        domain.ProductRepository
	reviews         domain.ReviewRepository
	orders          domain.OrderRepository
	timeline        domain.TimelineRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository

	checkers map[string]healthcheck.Checker
	closers  []func() error
}

// close освобождает подключения в обратном порядке открытия.
func (d *runtimeDependencies) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (_ *runtimeDependencies, err error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}
	defer func() {
		if err != nil {
			_ = deps.close()
		}
	}()

	var pgStore *postgres.Store
	openPostgres := func() (*postgres.Store, error) {
		if pgStore != nil {
			return pgStore, nil
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}
		deps.checkers["postgres"] = healthcheck.NewFuncChecker("postgres", store.Ping)
		pgStore = store
		return store, nil
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		deps.uow = memory.NewUnitOfWork(store)
		deps.products = memory.NewProductRepository(store)
		deps.reviews = memory.NewReviewRepository(store)
		deps.orders = memory.NewOrderRepository(store)
		deps.timeline = memory.NewTimelineRepository(store)
		deps.outboxRepo = memory.NewOutboxRepository(store)
		deps.checkers["storage"] = healthcheck.NewFuncChecker("storage", store.Ping)
		logger.Warn("using in-memory storage, data is lost on restart")
	case StorageDriverPostgres:
		store, err := openPostgres()
		if err != nil {
			return nil, err
		}
		deps.uow = postgres.NewUnitOfWork(store)
		deps.products = postgres.NewProductRepository(store)
		deps.reviews = postgres.NewReviewRepository(store)
		deps.orders = postgres.NewOrderRepository(store)
		deps.timeline = postgres.NewTimelineRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.idempotencyDriver() {
	case IdempotencyDriverMemory:
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
	case IdempotencyDriverPostgres:
		store, err := openPostgres()
		if err != nil {
			return nil, err
		}
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
	case IdempotencyDriverRedis:
		client, err := redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		deps.idempotencyRepo = redis.NewIdempotencyRepository(client)
		deps.checkers["redis"] = healthcheck.NewOptionalChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	default:
		return nil, fmt.Errorf("unsupported idempotency driver %q", cfg.idempotencyDriver())
	}

	logger.WithFields(log.Fields{
		"storage":     cfg.StorageDriver,
		"idempotency": cfg.idempotencyDriver(),
	}).Info("storage initialized")
	return deps, nil
}
