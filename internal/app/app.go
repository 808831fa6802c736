package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/sahaalaf/sashop/internal/domain"
	healthcheck "github.com/sahaalaf/sashop/internal/health"
	"github.com/sahaalaf/sashop/internal/metrics"
	"github.com/sahaalaf/sashop/internal/service/catalog"
	grpcsvc "github.com/sahaalaf/sashop/internal/service/grpc"
	"github.com/sahaalaf/sashop/internal/service/idempotency"
	"github.com/sahaalaf/sashop/internal/service/orders"
	"github.com/sahaalaf/sashop/internal/service/outbox"
	httpapi "github.com/sahaalaf/sashop/internal/transport/http"
	"github.com/sahaalaf/sashop/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// Run поднимает REST API, gRPC, служебный HTTP сервер и фоновые воркеры.
// Возвращает ctx.Err() после штатной остановки по отмене контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(version.Current().Fields()).Info("starting sashop")

	policy, err := domain.ParseTransitionPolicy(cfg.OrderTransitions)
	if err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	publishers, err := initOutboxPublishers(cfg, logger)
	if err != nil {
		return err
	}
	defer closeKafka(publishers.producer, logger)

	orderSvc := orders.NewService(deps.uow, deps.products, deps.orders, deps.timeline,
		orders.WithLogger(log.WithField("component", "orders")),
		orders.WithMetrics(metrics.NewOrderMetrics()),
		orders.WithShippingPrice(cfg.ShippingPriceMinor),
		orders.WithTransitionPolicy(policy),
	)
	catalogSvc := catalog.NewService(deps.products, deps.reviews, log.WithField("component", "catalog"))

	apiCfg := httpapi.Config{
		Logger:             log.WithField("component", "http-api"),
		Metrics:            metrics.NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer),
		ExposeErrorDetails: cfg.ExposeErrorDetails,
		RateLimit:          cfg.RateLimitRPS,
		RateBurst:          cfg.RateLimitBurst,
		IdempotencyTTL:     cfg.IdempotencyTTL,
	}
	gin.SetMode(gin.ReleaseMode)
	apiSrv := &http.Server{
		Handler:           httpapi.NewRouter(httpapi.NewHandler(orderSvc, catalogSvc, deps.idempotencyRepo, apiCfg), apiCfg),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	grpcServer, grpcHealth := newGRPCServer(orderSvc, deps.idempotencyRepo, logger)

	healthHandler := healthcheck.NewHandler(version.Current().Version, 0)
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	if checker := publishers.checker(); checker != nil {
		healthHandler.RegisterChecker("kafka", checker)
	}
	metricsSrv := &http.Server{
		Handler:           newMetricsMux(healthHandler),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	outboxWorker := outbox.NewWorker(deps.outboxRepo, publishers.events,
		outbox.WithLogger(log.WithField("component", "outbox-relay")),
		outbox.WithDLQPublisher(publishers.dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(log.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	listeners, err := listenAll(cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("HTTP API слушает %s", listeners.api.Addr())
		return serveHTTP(apiSrv, listeners.api)
	})
	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", listeners.grpc.Addr())
		if err := grpcServer.Serve(listeners.grpc); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("метрики доступны по адресу %s/metrics", listeners.metrics.Addr())
		return serveHTTP(metricsSrv, listeners.metrics)
	})
	g.Go(func() error { return outboxWorker.Run(gctx) })
	g.Go(func() error { return cleanupWorker.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.Shutdown()
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func newGRPCServer(orderSvc grpcsvc.Orders, idemRepo domain.IdempotencyRepository, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(orderSvc, idemRepo, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(server)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)
	return server, healthServer
}

// newMetricsMux собирает служебные маршруты: /metrics, /healthz, /livez, /readyz.
func newMetricsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

type runtimeListeners struct {
	api     net.Listener
	grpc    net.Listener
	metrics net.Listener
}

func listenAll(cfg Config) (runtimeListeners, error) {
	var (
		ls     runtimeListeners
		opened []net.Listener
	)
	targets := []struct {
		addr string
		dst  *net.Listener
	}{
		{cfg.HTTPAddr, &ls.api},
		{cfg.GRPCAddr, &ls.grpc},
		{cfg.MetricsAddr, &ls.metrics},
	}
	for _, target := range targets {
		lis, err := net.Listen("tcp", target.addr)
		if err != nil {
			for _, l := range opened {
				_ = l.Close()
			}
			return runtimeListeners{}, fmt.Errorf("listen %s: %w", target.addr, err)
		}
		opened = append(opened, lis)
		*target.dst = lis
	}
	return ls, nil
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server %s: %w", lis.Addr(), err)
	}
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// stopGRPC ждёт завершения активных вызовов не дольше timeout.
func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}
