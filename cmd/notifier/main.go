// Command notifier consumes SMS events published by the api and delivers
// them through the configured sender.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/tapcart/internal/config"
	"github.com/safar/tapcart/internal/kafka"
	"github.com/safar/tapcart/internal/notify"
	"github.com/safar/tapcart/internal/redisx"
	"github.com/safar/tapcart/internal/telemetry"
)

const serviceName = "notifier"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, "tapcart-"+serviceName, cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redisx.New(ctx, &cfg.Redis)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.NotifyTopic,
		cfg.Kafka.Workers, logger)
	handler := notify.Handler(notify.NewLogNotifier(logger), redisx.NewDeduper(rdb, serviceName, redisx.TTLDedup))

	logger.Info("notifier consuming",
		slog.String("topic", cfg.Kafka.NotifyTopic),
		slog.String("group", cfg.Kafka.ConsumerGroup))

	if err := consumer.Start(ctx, handler); err != nil {
		logger.Error("consumer stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("notifier stopped")
}
