package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/tapcart/internal/admin"
	"github.com/safar/tapcart/internal/auth"
	"github.com/safar/tapcart/internal/checkout"
	"github.com/safar/tapcart/internal/config"
	"github.com/safar/tapcart/internal/coupon"
	"github.com/safar/tapcart/internal/database"
	"github.com/safar/tapcart/internal/httpx"
	"github.com/safar/tapcart/internal/kafka"
	"github.com/safar/tapcart/internal/notify"
	"github.com/safar/tapcart/internal/otp"
	"github.com/safar/tapcart/internal/redisx"
	"github.com/safar/tapcart/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.Telemetry.ServiceName, cfg.Telemetry.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, &cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database")

	rdb, err := redisx.New(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic, 1024, logger)
		producer.Start(context.Background())
		defer func() {
			producer.Close()
			producer.WaitClosed()
		}()
		notifier = notify.NewKafkaNotifier(producer)
		logger.Info("notifications go to kafka", slog.String("topic", cfg.Kafka.NotifyTopic))
	}

	sessions := auth.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	coupons := coupon.NewEvaluator(db)

	h := &httpx.Handler{
		Catalog: httpx.DBCatalog{DB: db},
		OTP:     otp.NewVerifier(otp.NewRedisStore(rdb), notifier, cfg.OTP, cfg.Checkout.NotifyTimeout),
		Coupons: coupons,
		Checkout: checkout.NewFinalizer(db, coupons, notifier,
			checkout.NewRedisIdempotency(rdb, cfg.Checkout.IdempotencyTTL),
			cfg.Checkout, cfg.Server.PublicBaseURL, logger),
		Admin:          admin.NewService(db, notifier, cfg.Server.PublicBaseURL, cfg.Checkout.NotifyTimeout, logger),
		Auth:           auth.NewService(db, sessions),
		RequireOTP:     cfg.Checkout.RequireOTP,
		DefaultCountry: cfg.OTP.DefaultCountry,
		CookieSecure:   cfg.Auth.CookieSecure,
		SessionTTL:     sessions.TTL(),
	}

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: httpx.NewRouter(h, httpx.RouterConfig{
			RequestTimeout: cfg.Server.RequestTimeout,
			OTPRateRPS:     cfg.OTP.RateRPS,
			OTPRateBurst:   cfg.OTP.RateBurst,
			Sessions:       sessions,
			ServiceName:    cfg.Telemetry.ServiceName,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(sctx)
}
