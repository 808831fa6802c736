package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}
	log.Info("sashop остановлен")
}

// run читает конфигурацию из окружения и держит сервис до SIGINT/SIGTERM.
func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	if err := app.ConfigureLogging(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
	}).Info("запускаем sashop")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
